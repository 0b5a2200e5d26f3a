package core

import (
	"errors"
	"reflect"
	"testing"
)

func TestQuery_Encode(t *testing.T) {
	q := Query{}.
		WithInt(ParamSkip, 500).
		WithInt(ParamTop, 500).
		With(ParamFilter, TriggerLockFilter).
		With(ParamOrderBy, "")

	got := q.Encode()
	want := "%24skip=500&%24top=500&%24filter=logType%20eq%20%27Command%27%20and%20command%20eq%20%27TriggerLock%27"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
	if q.Get(ParamOrderBy) != "" {
		t.Error("empty values should not be appended")
	}
}

func TestQuery_WithDoesNotAlias(t *testing.T) {
	base := make(Query, 0, 4).With(ParamSelect, "id")
	a := base.With(ParamTop, "1")
	b := base.With(ParamTop, "2")
	if a.Get(ParamTop) != "1" || b.Get(ParamTop) != "2" {
		t.Errorf("queries share backing array: a=%v b=%v", a, b)
	}
}

func TestIDFilter(t *testing.T) {
	got, err := IDFilter([]string{"a1", "b-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "id eq 'a1' or id eq 'b-2'"; got != want {
		t.Errorf("IDFilter() = %q, want %q", got, want)
	}

	if _, err := IDFilter([]string{"ok", "x' or id ne '"}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestQuoteODataString(t *testing.T) {
	if got := quoteODataString("o'brien"); got != "'o''brien'" {
		t.Errorf("got %q", got)
	}
}

func TestKeySet(t *testing.T) {
	a, b, empty := "b", "a", ""
	dup := "b"

	ks := KeySet{}
	ks.Add(&a)
	ks.Add(&b)
	ks.Add(&dup)
	ks.Add(&empty)
	ks.Add(nil)

	if got, want := ks.Sorted(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Sorted() = %v, want %v", got, want)
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]string{"a", "b", "c", "d", "e"}, 2)
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("chunk() = %v, want %v", got, want)
	}
	if got := chunk(nil, 2); len(got) != 0 {
		t.Errorf("chunk(nil) = %v, want empty", got)
	}
}
