package rules

import (
	"fmt"

	"github.com/ksj/cloud-doctor/internal/evidence"
)

// Typed attribute accessors for checks. A present attribute of the wrong
// kind is an evaluation fault, not a FAIL; the returned error surfaces as an
// ERROR finding.

func boolAttr(res evidence.Resource, key string) (bool, error) {
	v, ok := res.Attr(key)
	if !ok {
		return false, fmt.Errorf("attribute %q missing", key)
	}
	b, ok := v.AsBool()
	if !ok {
		return false, fmt.Errorf("attribute %q: want bool, got %s", key, v.Kind())
	}
	return b, nil
}

func stringAttr(res evidence.Resource, key string) (string, error) {
	v, ok := res.Attr(key)
	if !ok {
		return "", fmt.Errorf("attribute %q missing", key)
	}
	s, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("attribute %q: want string, got %s", key, v.Kind())
	}
	return s, nil
}

func numberAttr(res evidence.Resource, key string) (float64, error) {
	v, ok := res.Attr(key)
	if !ok {
		return 0, fmt.Errorf("attribute %q missing", key)
	}
	n, ok := v.AsNumber()
	if !ok {
		return 0, fmt.Errorf("attribute %q: want number, got %s", key, v.Kind())
	}
	return n, nil
}

func listAttr(res evidence.Resource, key string) ([]evidence.Value, error) {
	v, ok := res.Attr(key)
	if !ok {
		return nil, fmt.Errorf("attribute %q missing", key)
	}
	l, ok := v.AsList()
	if !ok {
		return nil, fmt.Errorf("attribute %q: want list, got %s", key, v.Kind())
	}
	return l, nil
}

// field helpers read a record field; absent fields yield the zero value.

func stringField(v evidence.Value, name string) string {
	f, ok := v.Field(name)
	if !ok {
		return ""
	}
	s, _ := f.AsString()
	return s
}

func numberField(v evidence.Value, name string) (float64, bool) {
	f, ok := v.Field(name)
	if !ok {
		return 0, false
	}
	return f.AsNumber()
}

func boolField(v evidence.Value, name string) bool {
	f, ok := v.Field(name)
	if !ok {
		return false
	}
	b, _ := f.AsBool()
	return b
}

// boolCheck builds a check that FAILs when the attribute equals failWhen.
func boolCheck(key string, failWhen bool, failMsg, passMsg string) Check {
	return func(ctx CheckContext) (Outcome, error) {
		b, err := boolAttr(ctx.Resource, key)
		if err != nil {
			return Outcome{}, err
		}
		if b == failWhen {
			return Fail(failMsg, ctx.Resource.ID()), nil
		}
		return Pass(passMsg, ctx.Resource.ID()), nil
	}
}
