package audit

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Redacted replaces the value of every sensitive field.
const Redacted = "[REDACTED]"

// sensitiveKeys are matched after lower-casing and dropping '_' and '-'.
var sensitiveKeys = map[string]struct{}{
	"password": {}, "passwordhash": {}, "currentpassword": {}, "newpassword": {}, "oldpassword": {},
	"token": {}, "accesstoken": {}, "refreshtoken": {}, "csrftoken": {}, "idtoken": {},
	"secret": {}, "clientsecret": {}, "apikey": {}, "privatekey": {},
	"ssn": {}, "socialsecuritynumber": {}, "nationalid": {}, "taxid": {}, "passport": {}, "passportnumber": {},
	"salary": {}, "compensation": {}, "bonus": {}, "bankaccount": {}, "iban": {}, "creditcard": {}, "cardnumber": {},
	"phone": {}, "phonenumber": {}, "mobile": {}, "address": {}, "homeaddress": {}, "personalemail": {},
}

// sensitiveFragments catch compound names such as "confirmPassword" or "sessionToken".
var sensitiveFragments = []string{"password", "secret", "token"}

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "").Replace(k)
}

// IsSensitiveKey reports whether values under key must be redacted.
func IsSensitiveKey(key string) bool {
	k := normalizeKey(key)
	if _, ok := sensitiveKeys[k]; ok {
		return true
	}
	for _, f := range sensitiveFragments {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

// Mask returns a deep copy of v with every sensitive field replaced by Redacted, recursing into
// nested maps and slices. Typed maps, slices and structs are first converted to their generic
// JSON form, so their fields are masked like hand-built maps. v itself is never modified.
// Masking a masked value is a no-op.
func Mask(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return MaskMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Mask(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = MaskMap(e)
		}
		return out
	default:
		if !composite(v) {
			return v
		}
		return Mask(generic(v))
	}
}

func composite(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}

// generic round-trips v through JSON into maps, slices and scalars. A value that cannot be
// encoded is replaced rather than stored unmasked.
func generic(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return "unencodable value"
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return "unencodable value"
	}
	return out
}

// MaskMap is Mask for a map payload. A nil map stays nil.
func MaskMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = Mask(v)
	}
	return out
}

// Snapshot converts a struct (or anything JSON-encodable) into the generic map form stored in
// Before/After. Fields then pass through the same masking as hand-built maps.
func Snapshot(v any) map[string]any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"_error": "unencodable snapshot"}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{"_value": string(b)}
	}
	return out
}
