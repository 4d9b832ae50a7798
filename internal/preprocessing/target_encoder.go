package preprocessing

import (
	"fmt"
	"strings"
)

// TargetEncoder maps the churn column's yes/no style tokens onto {0, 1}.
type TargetEncoder struct {
	ClassToInt map[string]int
	IntToClass map[int]string
}

func NewTargetEncoder() *TargetEncoder {
	return &TargetEncoder{
		ClassToInt: map[string]int{
			"yes": 1, "no": 0,
			"1": 1, "0": 0,
			"true": 1, "false": 0,
			"1.0": 1, "0.0": 0,
		},
		IntToClass: map[int]string{0: "No", 1: "Yes"},
	}
}

func (te *TargetEncoder) Class(label string) (int, bool) {
	v, ok := te.ClassToInt[strings.ToLower(strings.TrimSpace(label))]
	return v, ok
}

func (te *TargetEncoder) Transform(labels []string) ([]int, error) {
	result := make([]int, len(labels))
	for i, label := range labels {
		val, ok := te.Class(label)
		if !ok {
			return nil, fmt.Errorf("unknown target label at row %d: %q", i, label)
		}
		result[i] = val
	}
	return result, nil
}

func (te *TargetEncoder) InverseTransform(encoded []int) ([]string, error) {
	result := make([]string, len(encoded))
	for i, val := range encoded {
		label, ok := te.IntToClass[val]
		if !ok {
			return nil, fmt.Errorf("unknown encoding: %d", val)
		}
		result[i] = label
	}
	return result, nil
}
