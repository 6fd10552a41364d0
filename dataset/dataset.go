package dataset

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// FeatureColumns 模型消费的固定特征列
var FeatureColumns = []string{
	"Global_active_power",
	"Global_reactive_power",
	"Voltage",
	"Global_intensity",
	"Sub_metering_1",
	"Sub_metering_2",
	"Sub_metering_3",
}

// IsFeatureColumn reports whether name is one of the fixed feature columns.
func IsFeatureColumn(name string) bool {
	for _, c := range FeatureColumns {
		if c == name {
			return true
		}
	}
	return false
}

// Dataset 清洗后的数值表格
//
// Loaded datasets are shared through the cache and must be treated as
// read-only; Filter, Sample and OrderByDesc never mutate the receiver.
type Dataset struct {
	Columns    []string
	Values     map[string][]float64
	Timestamps []time.Time
	HasTime    bool

	// Dropped counts raw rows removed during load because of missing or
	// unparseable values.
	Dropped int
}

// New 构造数据集并校验列长度一致
func New(columns []string, values map[string][]float64, timestamps []time.Time) (*Dataset, error) {
	d := &Dataset{Columns: columns, Values: values}
	if timestamps != nil {
		d.Timestamps = timestamps
		d.HasTime = true
	}
	n := d.Len()
	for _, c := range columns {
		col, ok := values[c]
		if !ok {
			return nil, fmt.Errorf("column %s has no values", c)
		}
		if len(col) != n {
			return nil, fmt.Errorf("column %s has %d values, want %d", c, len(col), n)
		}
	}
	if d.HasTime && len(timestamps) != n {
		return nil, fmt.Errorf("timestamps have %d values, want %d", len(timestamps), n)
	}
	return d, nil
}

// Len returns the row count.
func (d *Dataset) Len() int {
	if len(d.Columns) > 0 {
		return len(d.Values[d.Columns[0]])
	}
	return len(d.Timestamps)
}

// HasColumn reports whether the named column is present.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.Values[name]
	return ok
}

// Time returns the timestamp of row i, if the dataset carries timestamps.
func (d *Dataset) Time(i int) (time.Time, bool) {
	if !d.HasTime {
		return time.Time{}, false
	}
	return d.Timestamps[i], true
}

// MissingColumnsError 缺少必需特征列
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required feature columns: " + strings.Join(e.Columns, ", ")
}

// FeatureMatrix 按列名抽取特征矩阵,缺列返回 MissingColumnsError
func (d *Dataset) FeatureMatrix(columns []string) ([][]float64, error) {
	var missing []string
	for _, c := range columns {
		if !d.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	n := d.Len()
	matrix := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(columns))
		for j, c := range columns {
			row[j] = d.Values[c][i]
		}
		matrix[i] = row
	}
	return matrix, nil
}

// FilterRange 按时间闭区间过滤,nil 边界表示不限制
func (d *Dataset) FilterRange(start, end *time.Time) *Dataset {
	if (start == nil && end == nil) || !d.HasTime {
		return d
	}
	keep := make([]int, 0, d.Len())
	for i, ts := range d.Timestamps {
		if start != nil && ts.Before(*start) {
			continue
		}
		if end != nil && ts.After(*end) {
			continue
		}
		keep = append(keep, i)
	}
	return d.subset(keep)
}

// Sample 以固定种子随机抽取 n 行,n 超界时原样返回
func (d *Dataset) Sample(n int, seed int64) *Dataset {
	if n <= 0 || n >= d.Len() {
		return d
	}
	rng := rand.New(rand.NewSource(seed))
	keep := rng.Perm(d.Len())[:n]
	return d.subset(keep)
}

// OrderByDesc returns row indexes ordered by the named column, descending.
// Unknown columns yield the natural order. The dataset is not reordered.
func (d *Dataset) OrderByDesc(column string) []int {
	order := make([]int, d.Len())
	for i := range order {
		order[i] = i
	}
	vals, ok := d.Values[column]
	if !ok {
		return order
	}
	sort.SliceStable(order, func(a, b int) bool {
		return vals[order[a]] > vals[order[b]]
	})
	return order
}

func (d *Dataset) subset(keep []int) *Dataset {
	out := &Dataset{
		Columns: d.Columns,
		Values:  make(map[string][]float64, len(d.Columns)),
		HasTime: d.HasTime,
		Dropped: d.Dropped,
	}
	for _, c := range d.Columns {
		src := d.Values[c]
		col := make([]float64, len(keep))
		for k, i := range keep {
			col[k] = src[i]
		}
		out.Values[c] = col
	}
	if d.HasTime {
		out.Timestamps = make([]time.Time, len(keep))
		for k, i := range keep {
			out.Timestamps[k] = d.Timestamps[i]
		}
	}
	return out
}
