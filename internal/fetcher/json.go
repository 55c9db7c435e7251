package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray streams the elements of a top-level JSON array.
// Both channels close when decoding ends.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	return decodeJSON[T](ctx, r, "")
}

// DecodeJSONEnvelope streams the elements of the array stored under key in a
// top-level object, e.g. the OData shape {"@odata.context": ..., "value": [...]}.
// Other members are skipped. A missing key yields no elements and no error.
func DecodeJSONEnvelope[T any](ctx context.Context, r io.Reader, key string) (<-chan T, <-chan error) {
	return decodeJSON[T](ctx, r, key)
}

func decodeJSON[T any](ctx context.Context, r io.Reader, key string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		dec := json.NewDecoder(r)
		if key != "" {
			found, err := seekKey(dec, key)
			if err != nil {
				errCh <- err
				return
			}
			if !found {
				return
			}
		}

		tok, err := dec.Token()
		if err == io.EOF && key == "" {
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for dec.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
			var item T
			if err := dec.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}
			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}
		if _, err := dec.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return outCh, errCh
}

// seekKey advances dec past the top-level object's key, leaving the decoder
// positioned at its value.
func seekKey(dec *json.Decoder, key string) (bool, error) {
	tok, err := dec.Token()
	if err != nil {
		return false, eris.Wrap(err, "json: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return false, eris.Errorf("json: expected '{', got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return false, eris.Wrap(err, "json: read key")
		}
		if name, ok := tok.(string); ok && name == key {
			return true, nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return false, eris.Wrap(err, "json: skip member")
		}
	}
	return false, nil
}

// DecodeJSONObject decodes a single JSON value from r.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}
