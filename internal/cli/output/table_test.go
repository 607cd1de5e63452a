package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableData(t *testing.T) {
	table := NewTableData("Name", "Admin")

	assert.Equal(t, []string{"Name", "Admin"}, table.Headers())
	assert.Empty(t, table.Rows())

	table.AddRow("alice", "yes")
	table.AddRow("bob", "no")

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"alice", "yes"}, rows[0])
	assert.Equal(t, []string{"bob", "no"}, rows[1])
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Name", "Admin")
	table.AddRow("alice", "yes")
	table.AddRow("bob", "no")

	var buf bytes.Buffer
	err := PrintTable(&buf, table)
	require.NoError(t, err)

	out := buf.String()
	// Headers are uppercased by the table style.
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "ADMIN")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "bob")
}

func TestSimpleTable(t *testing.T) {
	pairs := [][2]string{
		{"Status", "Running"},
		{"PID", "4242"},
	}

	var buf bytes.Buffer
	err := SimpleTable(&buf, pairs)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Status")
	assert.Contains(t, out, "Running")
	assert.Contains(t, out, "PID")
	assert.Contains(t, out, "4242")
}
