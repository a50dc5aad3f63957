// Package version reports the gridstore build.
//
// Version, commit, branch and build time are set with -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/gridstore/version.Version=1.2.0 \
//	    -X github.com/kbukum/gridstore/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/gridstore
//
// Unset values fall back to the VCS stamps in the binary's build info.
package version
