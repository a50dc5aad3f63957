// Command gridstore serves multipart uploads into GridFS.
//
//	gridstore serve --config config.yml
//	gridstore version
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
