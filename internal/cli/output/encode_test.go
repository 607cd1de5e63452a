package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUser struct {
	Name  string `json:"name" yaml:"name"`
	Admin bool   `json:"admin" yaml:"admin"`
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	err := PrintJSON(&buf, fakeUser{Name: "alice", Admin: true})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"name": "alice"`)
	assert.Contains(t, out, `"admin": true`)
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestPrintJSONList(t *testing.T) {
	users := []fakeUser{{Name: "alice"}, {Name: "bob", Admin: true}}

	var buf bytes.Buffer
	err := PrintJSON(&buf, users)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"name": "alice"`)
	assert.Contains(t, out, `"name": "bob"`)
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	err := PrintYAML(&buf, fakeUser{Name: "alice"})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "name: alice")
	assert.Contains(t, out, "admin: false")
}

func TestPrintYAMLList(t *testing.T) {
	users := []fakeUser{{Name: "alice"}, {Name: "bob"}}

	var buf bytes.Buffer
	err := PrintYAML(&buf, users)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "- name: alice")
	assert.Contains(t, out, "- name: bob")
}
