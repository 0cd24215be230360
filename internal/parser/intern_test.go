package parser

import (
	"testing"
	"unsafe"

	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringIntern(t *testing.T) {
	si := NewStringIntern(0)

	s1 := si.InternBytes([]byte("level"))
	s2 := si.InternBytes([]byte("level"))
	assert.Equal(t, s1, s2)
	assert.Equal(t, unsafe.StringData(s1), unsafe.StringData(s2))

	si.InternBytes([]byte("msg"))
	assert.Equal(t, 2, si.Len())
}

func TestStringIntern_Limit(t *testing.T) {
	si := NewStringIntern(2)
	si.InternBytes([]byte("a"))
	si.InternBytes([]byte("b"))

	assert.Equal(t, "c", si.InternBytes([]byte("c")))
	assert.Equal(t, 2, si.Len())
}

func TestRecordParser_SharesKeys(t *testing.T) {
	p := NewRecordParser("", logging.Discard())

	a, err := p.Parse(`{"_time":"2024-01-01T00:00:00Z","service":"api","ctx":{"host":"a"}}`)
	require.NoError(t, err)
	b, err := p.Parse(`{"_time":"2024-01-01T00:00:01Z","service":"web","ctx":{"host":"b"}}`)
	require.NoError(t, err)

	keyOf := func(m map[string]any, want string) string {
		for k := range m {
			if k == want {
				return k
			}
		}
		t.Fatalf("key %q missing", want)
		return ""
	}
	assert.Equal(t, unsafe.StringData(keyOf(a.Fields, "service")), unsafe.StringData(keyOf(b.Fields, "service")))
	assert.Equal(t, 4, p.keys.Len())
}

func BenchmarkStringIntern(b *testing.B) {
	si := NewStringIntern(0)
	keys := [][]byte{[]byte("_time"), []byte("level"), []byte("msg"), []byte("service")}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		si.InternBytes(keys[i%len(keys)])
	}
}
