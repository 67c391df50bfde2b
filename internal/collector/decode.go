package collector

import "github.com/sells-group/grants-cli/internal/fetcher"

// Decompress gunzips an extract. Any failure is an ErrCorruptExtract.
func Decompress(ex *Extract) ([]byte, error) {
	data, err := fetcher.Gunzip(ex.Data)
	if err != nil {
		return nil, newKindError(ErrCorruptExtract, err)
	}
	return data, nil
}
