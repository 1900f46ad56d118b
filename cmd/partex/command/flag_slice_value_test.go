package command

import (
	"reflect"
	"testing"
)

func TestAppendSliceValueSet(t *testing.T) {
	sv := new(AppendSliceValue)
	if err := sv.Set("foo"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := sv.Set("bar"); err != nil {
		t.Fatalf("err: %v", err)
	}

	expected := []string{"foo", "bar"}
	if !reflect.DeepEqual([]string(*sv), expected) {
		t.Fatalf("bad: %#v", sv)
	}
}
