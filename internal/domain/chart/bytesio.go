package chart

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// bytesBuffer is io.BytesIO: savefig writes into it, getvalue reads it back.
type bytesBuffer struct {
	buf bytes.Buffer
}

var _ starlark.HasAttrs = (*bytesBuffer)(nil)

func (b *bytesBuffer) String() string        { return fmt.Sprintf("<BytesIO %d bytes>", b.buf.Len()) }
func (b *bytesBuffer) Type() string          { return "BytesIO" }
func (b *bytesBuffer) Freeze()               {}
func (b *bytesBuffer) Truth() starlark.Bool  { return true }
func (b *bytesBuffer) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: BytesIO") }

var bufferMethods = map[string]*starlark.Builtin{
	"getvalue": starlark.NewBuiltin("getvalue", bufferGetValue),
	"write":    starlark.NewBuiltin("write", bufferWrite),
	"seek":     starlark.NewBuiltin("seek", bufferSeek),
	"close":    starlark.NewBuiltin("close", bufferSeek),
}

func (b *bytesBuffer) Attr(name string) (starlark.Value, error) {
	if m, ok := bufferMethods[name]; ok {
		return m.BindReceiver(b), nil
	}
	return nil, nil
}

func (b *bytesBuffer) AttrNames() []string {
	return []string{"close", "getvalue", "seek", "write"}
}

func bufferGetValue(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.Bytes(fn.Receiver().(*bytesBuffer).buf.String()), nil
}

func bufferWrite(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &data); err != nil {
		return nil, err
	}
	raw, err := asBytes(data)
	if err != nil {
		return nil, err
	}
	n, _ := fn.Receiver().(*bytesBuffer).buf.Write(raw)
	return starlark.MakeInt(n), nil
}

// bufferSeek accepts and ignores its arguments; writes always append and
// getvalue always returns everything.
func bufferSeek(_ *starlark.Thread, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	return starlark.None, nil
}

func newBytesIO(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return &bytesBuffer{}, nil
}

// encoded is the result of base64.b64encode; .decode() turns it into a
// string.
type encoded string

func (e encoded) String() string        { return fmt.Sprintf("b%q", string(e)) }
func (e encoded) Type() string          { return "bytes" }
func (e encoded) Freeze()               {}
func (e encoded) Truth() starlark.Bool  { return len(e) > 0 }
func (e encoded) Hash() (uint32, error) { return starlark.String(e).Hash() }

func (e encoded) Attr(name string) (starlark.Value, error) {
	if name != "decode" {
		return nil, nil
	}
	return starlark.NewBuiltin("decode", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var encoding string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "encoding?", &encoding); err != nil {
			return nil, err
		}
		return starlark.String(e), nil
	}), nil
}

func (e encoded) AttrNames() []string { return []string{"decode"} }

func b64encode(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &data); err != nil {
		return nil, err
	}
	raw, err := asBytes(data)
	if err != nil {
		return nil, err
	}
	return encoded(base64.StdEncoding.EncodeToString(raw)), nil
}

func asBytes(v starlark.Value) ([]byte, error) {
	switch x := v.(type) {
	case starlark.Bytes:
		return []byte(x), nil
	case starlark.String:
		return []byte(x), nil
	case encoded:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("a bytes-like object is required, not %s", v.Type())
}

func ioModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "io",
		Members: starlark.StringDict{
			"BytesIO": starlark.NewBuiltin("BytesIO", newBytesIO),
		},
	}
}

func base64Module() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "base64",
		Members: starlark.StringDict{
			"b64encode": starlark.NewBuiltin("b64encode", b64encode),
		},
	}
}

func pandasModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "pandas",
		Members: starlark.StringDict{
			"DataFrame": starlark.NewBuiltin("DataFrame", dataFrame),
		},
	}
}
