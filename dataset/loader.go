package dataset

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// 与默认数据集一致的 日/月/年 24 小时制格式
const timestampLayout = "02/01/2006 15:04:05"

var (
	// ErrUnsupportedFormat 不支持的文件扩展名
	ErrUnsupportedFormat = errors.New("unsupported file format, upload a .csv or .txt file")
	// ErrMalformed 文件无法按分隔表格解析
	ErrMalformed = errors.New("could not parse dataset")
	// ErrDefaultDatasetMissing 默认数据集文件不存在
	ErrDefaultDatasetMissing = errors.New("default dataset not found")
)

// Parse 解析分隔文本为数据集,文件名只用来判定格式
//
// .csv is comma-delimited, .txt semicolon-delimited. When both a Date and a
// Time column are present they are merged into one timestamp and removed.
// Every remaining column is coerced to numeric with "?" treated as missing,
// and any row holding a missing value (including an unparseable timestamp)
// is dropped.
func Parse(r io.Reader, filename string) (*Dataset, error) {
	delim, err := delimiterFor(filename)
	if err != nil {
		return nil, err
	}
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	df := dataframe.ReadCSV(decoded,
		dataframe.WithDelimiter(delim),
		dataframe.HasHeader(true),
		dataframe.NaNValues([]string{"?", ""}),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, df.Err)
	}
	return fromFrame(df)
}

// LoadFile 按路径加载数据集
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Parse(f, filepath.Base(path))
}

func delimiterFor(filename string) (rune, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ',', nil
	case ".txt":
		return ';', nil
	default:
		return 0, ErrUnsupportedFormat
	}
}

func fromFrame(df dataframe.DataFrame) (*Dataset, error) {
	names := df.Names()
	rows := df.Nrow()

	mergeTime := hasName(names, "Date") && hasName(names, "Time")
	var stamps []time.Time
	var stampOK []bool
	if mergeTime {
		dates := df.Col("Date").Records()
		clocks := df.Col("Time").Records()
		stamps = make([]time.Time, rows)
		stampOK = make([]bool, rows)
		for i := 0; i < rows; i++ {
			ts, err := time.Parse(timestampLayout, dates[i]+" "+clocks[i])
			if err != nil {
				continue
			}
			stamps[i] = ts
			stampOK[i] = true
		}
	}

	columns := make([]string, 0, len(names))
	raw := make(map[string][]float64, len(names))
	for _, name := range names {
		if mergeTime && (name == "Date" || name == "Time") {
			continue
		}
		columns = append(columns, name)
		raw[name] = df.Col(name).Float()
	}

	keep := make([]int, 0, rows)
	for i := 0; i < rows; i++ {
		if mergeTime && !stampOK[i] {
			continue
		}
		ok := true
		for _, name := range columns {
			if math.IsNaN(raw[name][i]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}

	ds := &Dataset{
		Columns: columns,
		Values:  make(map[string][]float64, len(columns)),
		HasTime: mergeTime,
		Dropped: rows - len(keep),
	}
	for _, name := range columns {
		src := raw[name]
		col := make([]float64, len(keep))
		for k, i := range keep {
			col[k] = src[i]
		}
		ds.Values[name] = col
	}
	if mergeTime {
		ds.Timestamps = make([]time.Time, len(keep))
		for k, i := range keep {
			ds.Timestamps[k] = stamps[i]
		}
	}
	return ds, nil
}

func hasName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
