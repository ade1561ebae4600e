package collector

import (
	"fmt"
	"sort"

	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
)

// buildTags converts span tags, sorted by key so the output is stable.
func buildTags(tags map[string]interface{}) []*jaeger.Tag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*jaeger.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, BuildTag(k, tags[k]))
	}
	return out
}

// BuildTag converts one key/value pair into a typed wire tag. Values of
// unknown type are rendered as strings.
func BuildTag(key string, value interface{}) *jaeger.Tag {
	tag := &jaeger.Tag{Key: key}
	switch v := value.(type) {
	case string:
		tag.VType, tag.VStr = jaeger.TagType_STRING, &v
	case []byte:
		tag.VType, tag.VBinary = jaeger.TagType_BINARY, v
	case bool:
		tag.VType, tag.VBool = jaeger.TagType_BOOL, &v
	case int:
		setLong(tag, int64(v))
	case int8:
		setLong(tag, int64(v))
	case int16:
		setLong(tag, int64(v))
	case int32:
		setLong(tag, int64(v))
	case int64:
		setLong(tag, v)
	case uint:
		setLong(tag, int64(v))
	case uint8:
		setLong(tag, int64(v))
	case uint16:
		setLong(tag, int64(v))
	case uint32:
		setLong(tag, int64(v))
	case uint64:
		setLong(tag, int64(v))
	case float32:
		setDouble(tag, float64(v))
	case float64:
		setDouble(tag, v)
	default:
		s := fmt.Sprint(v)
		tag.VType, tag.VStr = jaeger.TagType_STRING, &s
	}
	return tag
}

func setLong(tag *jaeger.Tag, v int64) {
	tag.VType, tag.VLong = jaeger.TagType_LONG, &v
}

func setDouble(tag *jaeger.Tag, v float64) {
	tag.VType, tag.VDouble = jaeger.TagType_DOUBLE, &v
}

func buildLogs(records []opentracing.LogRecord) []*jaeger.Log {
	if len(records) == 0 {
		return nil
	}
	out := make([]*jaeger.Log, 0, len(records))
	for _, r := range records {
		enc := &tagEncoder{tags: make([]*jaeger.Tag, 0, len(r.Fields))}
		for _, f := range r.Fields {
			f.Marshal(enc)
		}
		out = append(out, &jaeger.Log{
			Timestamp: toMicros(r.Timestamp),
			Fields:    enc.tags,
		})
	}
	return out
}

// tagEncoder collects opentracing log fields as wire tags, keeping their order.
type tagEncoder struct {
	tags []*jaeger.Tag
}

var _ log.Encoder = (*tagEncoder)(nil)

func (e *tagEncoder) add(key string, value interface{}) {
	e.tags = append(e.tags, BuildTag(key, value))
}

func (e *tagEncoder) EmitString(key, value string)             { e.add(key, value) }
func (e *tagEncoder) EmitBool(key string, value bool)          { e.add(key, value) }
func (e *tagEncoder) EmitInt(key string, value int)            { e.add(key, value) }
func (e *tagEncoder) EmitInt32(key string, value int32)        { e.add(key, value) }
func (e *tagEncoder) EmitInt64(key string, value int64)        { e.add(key, value) }
func (e *tagEncoder) EmitUint32(key string, value uint32)      { e.add(key, value) }
func (e *tagEncoder) EmitUint64(key string, value uint64)      { e.add(key, value) }
func (e *tagEncoder) EmitFloat32(key string, value float32)    { e.add(key, value) }
func (e *tagEncoder) EmitFloat64(key string, value float64)    { e.add(key, value) }
func (e *tagEncoder) EmitObject(key string, value interface{}) { e.add(key, value) }
func (e *tagEncoder) EmitLazyLogger(value log.LazyLogger)      { value(e) }
