//go:build js

package export

import "github.com/cockroachdb/errors"

func marshalParquet([]Sample) ([]byte, error) {
	return nil, errors.New("parquet samples are not available in js builds; use csv")
}
