package combiner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"churnpredict/internal/data"
	"churnpredict/internal/schema"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		Categorical: []string{"Contract"},
		Numerical:   []string{"tenure"},
		Meta:        []string{"customerID"},
		Target:      "Churn",
	}
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCombineLastWins(t *testing.T) {
	dir := t.TempDir()
	existing := write(t, dir, "a.csv", "customerID,Contract,tenure,Churn,extra\n1,M,1,No,x\n2,M,2,No,x\n3,M,3,No,x\n")
	incoming := write(t, dir, "b.csv", "Churn,tenure,Contract,customerID\nYes,30,Y,3\nNo,4,Y,4\n")
	out := filepath.Join(dir, "combined", "out.csv")

	result := NewCombiner(testSchema(), zap.NewNop()).Combine(incoming, existing, out)
	require.True(t, result.OK, result.Message)
	assert.Equal(t, 4, result.RecordCount)

	ds, err := data.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"customerID", "Contract", "tenure", "Churn"}, ds.Columns)

	ids, _ := ds.Column("customerID")
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
	assert.Equal(t, []string{"3", "Y", "30", "Yes"}, ds.Rows[2])
}

func TestCombineMissingFile(t *testing.T) {
	dir := t.TempDir()
	existing := write(t, dir, "a.csv", "customerID,Contract,tenure,Churn\n1,M,1,No\n")

	result := NewCombiner(testSchema(), nil).Combine(filepath.Join(dir, "nope.csv"), existing, filepath.Join(dir, "o.csv"))
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "new dataset file not found")

	result = NewCombiner(testSchema(), nil).Combine(existing, filepath.Join(dir, "nope.csv"), filepath.Join(dir, "o.csv"))
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "existing dataset file not found")
}

func TestCombineMissingColumns(t *testing.T) {
	dir := t.TempDir()
	existing := write(t, dir, "a.csv", "customerID,Contract,tenure,Churn\n1,M,1,No\n")
	incoming := write(t, dir, "b.csv", "customerID,tenure\n2,5\n")

	result := NewCombiner(testSchema(), nil).Combine(incoming, existing, filepath.Join(dir, "o.csv"))
	assert.False(t, result.OK)
	assert.Equal(t, "new dataset is missing required columns: [Contract Churn]", result.Message)
	assert.Error(t, result.Err)

	result = NewCombiner(testSchema(), nil).Combine(existing, incoming, filepath.Join(dir, "o.csv"))
	assert.Equal(t, "existing dataset is missing required columns: [Contract Churn]", result.Message)
}

func TestCombineUnreadable(t *testing.T) {
	dir := t.TempDir()
	existing := write(t, dir, "a.csv", "customerID,Contract,tenure,Churn\n1,M,1,No\n")
	incoming := write(t, dir, "b.xlsx", "PK")

	result := NewCombiner(testSchema(), nil).Combine(incoming, existing, filepath.Join(dir, "o.csv"))
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "error loading new dataset")
}
