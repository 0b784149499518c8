package fetcher

import (
	"context"
	"io"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// EachJSONElement streams the top-level JSON array in r, calling fn once per
// element in order. Empty input is an empty array. Decoding stops at the
// first error from fn, which is returned unwrapped.
func EachJSONElement[T any](ctx context.Context, r io.Reader, fn func(T) error) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "json: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return eris.Errorf("json: want array, got %v", tok)
	}

	for n := 0; dec.More(); n++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "json: cancelled")
		}
		var item T
		if err := dec.Decode(&item); err != nil {
			return eris.Wrapf(err, "json: decode element %d", n)
		}
		if err := fn(item); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return eris.Wrap(err, "json: read closing token")
	}
	return nil
}
