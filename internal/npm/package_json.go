package npm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ije/gox/utils"
	"github.com/ije/gox/valid"
)

var naming = valid.Validator{valid.Range{'a', 'z'}, valid.Range{'A', 'Z'}, valid.Range{'0', '9'}, valid.Eq('_'), valid.Eq('.'), valid.Eq('-')}

// ValidatePackageName validates the package name.
// based on https://github.com/npm/validate-npm-package-name
func ValidatePackageName(pkgName string) bool {
	if l := len(pkgName); l == 0 || l > 214 {
		return false
	}
	if strings.HasPrefix(pkgName, "@") {
		scope, name := utils.SplitByFirstByte(pkgName, '/')
		return naming.Match(scope[1:]) && naming.Match(name)
	}
	return naming.Match(pkgName)
}

// PackageJSONRaw defines the package.json of a NPM package
type PackageJSONRaw struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Type         string          `json:"type"`
	Main         JSONAny         `json:"main"`
	Module       JSONAny         `json:"module"`
	Browser      JSONAny         `json:"browser"`
	Dependencies any             `json:"dependencies"`
	Exports      json.RawMessage `json:"exports"`
}

// PackageJSON defines the package.json of a NPM package
type PackageJSON struct {
	Name         string
	Version      string
	Type         string
	Main         string
	Module       string
	Browser      map[string]string
	Dependencies map[string]string
	Exports      JSONObject
}

// ToPackageJSON converts PackageJSONRaw to PackageJSON
func (a *PackageJSONRaw) ToPackageJSON() *PackageJSON {
	browser := map[string]string{}
	if a.Browser.Str != "" && isModule(a.Browser.Str) {
		browser["."] = a.Browser.Str
	}
	if a.Browser.Map != nil {
		for k, v := range a.Browser.Map {
			if s, ok := v.(string); ok {
				browser[k] = s
			}
		}
	}

	var dependencies map[string]string
	if m, ok := a.Dependencies.(map[string]any); ok {
		dependencies = make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok && k != "" && s != "" {
				dependencies[k] = s
			}
		}
	}

	exports := JSONObject{}
	if rawExports := a.Exports; rawExports != nil {
		var s string
		if json.Unmarshal(rawExports, &s) == nil {
			if len(s) > 0 {
				exports = JSONObject{
					keys:   []string{"."},
					values: map[string]any{".": s},
				}
			}
		} else {
			exports.UnmarshalJSON(rawExports)
		}
	}

	p := &PackageJSON{
		Name:         a.Name,
		Version:      a.Version,
		Type:         a.Type,
		Main:         a.Main.MainString(),
		Module:       a.Module.MainString(),
		Browser:      browser,
		Dependencies: dependencies,
		Exports:      exports,
	}

	// normalize package module field
	if p.Module == "" && p.Main != "" && (p.Type == "module" || strings.HasSuffix(p.Main, ".mjs")) {
		p.Module = p.Main
		p.Main = ""
	}

	return p
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (a *PackageJSON) UnmarshalJSON(b []byte) error {
	var raw PackageJSONRaw
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = *raw.ToPackageJSON()
	return nil
}

// JSONObject represents a readonly JSON object with ordered keys
type JSONObject struct {
	keys   []string
	values map[string]any
}

// NewJSONObject creates a new JSONObject with the given keys and values
func NewJSONObject(keys []string, values map[string]any) JSONObject {
	return JSONObject{
		keys:   keys,
		values: values,
	}
}

// Len returns the length of the JSON object
func (obj *JSONObject) Len() int {
	return len(obj.keys)
}

// Keys returns the keys of the JSON object
func (obj *JSONObject) Keys() []string {
	return obj.keys
}

// Get returns the value of the key in the JSON object
func (obj *JSONObject) Get(key string) (any, bool) {
	v, ok := obj.values[key]
	return v, ok
}

// UnmarshalJSON implements type json.Unmarshaler interface
func (obj *JSONObject) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	// don't convert number to float64
	dec.UseNumber()

	t, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expect JSON object open with '{'")
	}

	err = obj.parse(dec)
	if err != nil {
		return err
	}

	t, err = dec.Token()
	if err != io.EOF {
		return fmt.Errorf("expect end of JSON object but got more token: %T: %v or err: %v", t, t, err)
	}

	return nil
}

func (obj *JSONObject) parse(dec *json.Decoder) (err error) {
	var t json.Token
	for dec.More() {
		t, err = dec.Token()
		if err != nil {
			return err
		}

		key, ok := t.(string)
		if !ok {
			return fmt.Errorf("expecting JSON key should be always a string: %T: %v", t, t)
		}

		t, err = dec.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}

		var value any
		value, err = handleDelim(t, dec)
		if err != nil {
			return err
		}

		obj.keys = append(obj.keys, key)
		if obj.values == nil {
			obj.values = make(map[string]any)
		}
		obj.values[key] = value
	}

	t, err = dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := t.(json.Delim); !ok || delim != '}' {
		return fmt.Errorf("expect JSON object close with '}'")
	}

	return nil
}

func parseArray(dec *json.Decoder) (arr []any, err error) {
	var t json.Token
	arr = make([]any, 0)
	for dec.More() {
		t, err = dec.Token()
		if err != nil {
			return
		}

		var value any
		value, err = handleDelim(t, dec)
		if err != nil {
			return
		}
		arr = append(arr, value)
	}
	t, err = dec.Token()
	if err != nil {
		return
	}
	if delim, ok := t.(json.Delim); !ok || delim != ']' {
		err = fmt.Errorf("expect JSON array close with ']'")
		return
	}

	return
}

func handleDelim(t json.Token, dec *json.Decoder) (res any, err error) {
	if delim, ok := t.(json.Delim); ok {
		switch delim {
		case '{':
			obj := JSONObject{
				values: make(map[string]any),
			}
			err = obj.parse(dec)
			if err != nil {
				return
			}
			return obj, nil
		case '[':
			var value []any
			value, err = parseArray(dec)
			if err != nil {
				return
			}
			return value, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter: %q", delim)
		}
	}
	return t, nil
}

// JSONAny parses a JSON value that is either a string or an object
type JSONAny struct {
	Str string
	Map map[string]any
	Any any
}

func (a *JSONAny) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		a.Str = s
		return nil
	}
	var m map[string]any
	if json.Unmarshal(b, &m) == nil {
		a.Map = m
		return nil
	}
	return json.Unmarshal(b, &a.Any)
}

func (a *JSONAny) MainString() string {
	if a.Str != "" {
		return a.Str
	}
	if a.Map != nil {
		if v, ok := a.Map["."]; ok {
			if s, isStr := v.(string); isStr {
				return s
			}
		}
	}
	return ""
}

// isModule checks if the given string is a module file
func isModule(s string) bool {
	switch {
	case strings.HasSuffix(s, ".js"), strings.HasSuffix(s, ".mjs"), strings.HasSuffix(s, ".cjs"):
		return true
	default:
		return false
	}
}
