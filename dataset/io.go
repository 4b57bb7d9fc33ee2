package dataset

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-neuraltokenizer/internal/files"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Load reads a dataset from a ".json" or ".parquet" file, and validates it.
func Load(filePath string) (Dataset, error) {
	var (
		d   Dataset
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".json":
		d, err = LoadJSON(filePath)
	case ".parquet":
		d, err = LoadParquet(filePath)
	default:
		return nil, errors.Errorf("unknown dataset format %q for %q: use .json or .parquet", ext, filePath)
	}
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", filePath)
	}
	klog.V(1).Infof("Loaded %d sentences (%d characters) from %q", len(d), d.NumChars(), filePath)
	return d, nil
}

// LoadJSON reads a dataset in JSON format. It doesn't validate it.
func LoadJSON(filePath string) (Dataset, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %q", filePath)
	}
	defer func() { _ = f.Close() }()
	d, err := ReadJSON(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", filePath)
	}
	return d, nil
}

// ReadJSON reads a JSON dataset from r. It doesn't validate it.
func ReadJSON(r io.Reader) (Dataset, error) {
	var d Dataset
	if err := json.NewDecoder(bufio.NewReader(r)).Decode(&d); err != nil {
		return nil, errors.Wrap(err, "failed to decode JSON dataset")
	}
	return d, nil
}

// WriteJSON writes the dataset in JSON format, one sentence per line.
func (d Dataset) WriteJSON(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("[\n"); err != nil {
		return errors.Wrap(err, "failed to write dataset")
	}
	for i, s := range d {
		line, err := json.Marshal(s)
		if err != nil {
			return errors.Wrapf(err, "failed to encode sentence #%d", i)
		}
		if i > 0 {
			_, _ = bw.WriteString(",\n")
		}
		_, _ = bw.Write(line)
	}
	_, _ = bw.WriteString("\n]\n")
	return errors.Wrap(bw.Flush(), "failed to write dataset")
}

// parquetRow is the Parquet schema of a dataset.
type parquetRow struct {
	Text    string  `parquet:"text"`
	Classes []int32 `parquet:"classes"`
}

// LoadParquet reads a dataset in Parquet format. It doesn't validate it.
func LoadParquet(filePath string) (Dataset, error) {
	rows, err := parquet.ReadFile[parquetRow](filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read parquet dataset %q", filePath)
	}
	d := make(Dataset, len(rows))
	for i, row := range rows {
		classes := make([]api.CharClass, len(row.Classes))
		for j, c := range row.Classes {
			classes[j] = api.CharClass(c)
		}
		d[i] = AnnotatedSentence{Text: row.Text, Classes: classes}
	}
	return d, nil
}

// SaveParquet writes the dataset to filePath in Parquet format.
func (d Dataset) SaveParquet(filePath string) error {
	rows := make([]parquetRow, len(d))
	for i, s := range d {
		classes := make([]int32, len(s.Classes))
		for j, c := range s.Classes {
			classes[j] = int32(c)
		}
		rows[i] = parquetRow{Text: s.Text, Classes: classes}
	}
	return files.WriteAtomic(filePath, func(w io.Writer) error {
		return errors.Wrap(parquet.Write(w, rows), "failed to write parquet dataset")
	})
}

// SaveJSON writes the dataset to filePath in JSON format.
func (d Dataset) SaveJSON(filePath string) error {
	return files.WriteAtomic(filePath, d.WriteJSON)
}

// Save writes the dataset to filePath, in the format given by its extension (".json" or ".parquet").
func (d Dataset) Save(filePath string) error {
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".json":
		return d.SaveJSON(filePath)
	case ".parquet":
		return d.SaveParquet(filePath)
	default:
		return errors.Errorf("unknown dataset format %q for %q: use .json or .parquet", ext, filePath)
	}
}
