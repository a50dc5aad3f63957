package gridfs

import (
	"encoding/hex"
	"io"

	"github.com/kbukum/gridstore/async"
)

// RandomFunc adapts a function to io.Reader for use as Config.Random.
type RandomFunc func(p []byte) (int, error)

func (f RandomFunc) Read(p []byte) (int, error) { return f(p) }

// randomFilename reads n bytes from r and hex-encodes them. An error from
// r, or a panic carrying an error, is returned as is.
func randomFilename(r io.Reader, n int) (string, error) {
	var name string
	err := async.Capture(func() error {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		name = hex.EncodeToString(buf)
		return nil
	})
	return name, err
}
