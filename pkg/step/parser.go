// Package step reads the polygonal subset of STEP Part 21 files: AP242
// tessellated face sets and faceted B-rep shells. Curved geometry is out of
// scope here and is handled by delegating to a CAD kernel.
package step

import (
	"fmt"
	"strconv"
)

// Kind discriminates the parameter values of an instance record.
type Kind int

const (
	KindNull Kind = iota
	KindDerived
	KindNumber
	KindString
	KindEnum
	KindRef
	KindList
	KindTyped
)

// Value is one parameter of an instance record. Lists nest; typed values
// like PARAMETER_VALUE(1.0) keep their name in Str and payload in List.
type Value struct {
	Kind   Kind
	Number float64
	Str    string
	Ref    int
	List   []Value
}

// Entity is one `#id=TYPE(...)` record from the DATA section. Complex
// instances (`#id=(A(...) B(...))`) are kept with an empty Type so that
// references to them resolve without anyone acting on them.
type Entity struct {
	ID   int
	Type string
	Args []Value
}

// File is a parsed Part 21 file. Entity order follows the file so that
// repeated extractions stay deterministic.
type File struct {
	Entities map[int]Entity
	order    []int
}

// ByType returns all entities of the given type, in file order.
func (f *File) ByType(name string) []Entity {
	var out []Entity
	for _, id := range f.order {
		if e := f.Entities[id]; e.Type == name {
			out = append(out, e)
		}
	}
	return out
}

// Ref resolves an entity reference value. The second result is false when
// the value is not a reference or the target does not exist.
func (f *File) Ref(v Value) (Entity, bool) {
	if v.Kind != KindRef {
		return Entity{}, false
	}
	e, ok := f.Entities[v.Ref]
	return e, ok
}

// Parse scans Part 21 text into its instance records. It is deliberately
// lenient: header records, unknown entity types and complex instances are
// retained or skipped without error, since extraction decides afterwards
// whether the file contains anything usable.
func Parse(data []byte) (*File, error) {
	src := stripComments(data)
	file := &File{Entities: make(map[int]Entity)}

	d := &decoder{src: src}
	for {
		record, ok := d.nextRecord()
		if !ok {
			break
		}
		rd := &decoder{src: record}
		rd.skipSpace()
		if rd.pos >= len(rd.src) || rd.src[rd.pos] != '#' {
			continue // header record or section keyword
		}
		entity, err := rd.parseEntity()
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", truncateForError(record), err)
		}
		if _, dup := file.Entities[entity.ID]; dup {
			return nil, fmt.Errorf("duplicate entity #%d", entity.ID)
		}
		file.Entities[entity.ID] = entity
		file.order = append(file.order, entity.ID)
	}

	return file, nil
}

type decoder struct {
	src []byte
	pos int
}

// nextRecord returns the bytes up to the next statement-terminating
// semicolon, honoring string literals.
func (d *decoder) nextRecord() ([]byte, bool) {
	start := d.pos
	inString := false
	for d.pos < len(d.src) {
		c := d.src[d.pos]
		if c == '\'' {
			inString = !inString
		}
		if c == ';' && !inString {
			record := d.src[start:d.pos]
			d.pos++
			return record, true
		}
		d.pos++
	}
	return nil, false
}

func (d *decoder) parseEntity() (Entity, error) {
	d.pos++ // '#'
	id, err := d.parseInt()
	if err != nil {
		return Entity{}, fmt.Errorf("bad entity id: %w", err)
	}
	d.skipSpace()
	if d.pos >= len(d.src) || d.src[d.pos] != '=' {
		return Entity{}, fmt.Errorf("entity #%d: expected '='", id)
	}
	d.pos++
	d.skipSpace()

	entity := Entity{ID: id}
	if d.pos < len(d.src) && d.src[d.pos] == '(' {
		// Complex instance. Parse the group for structural validity only.
		if _, err := d.parseValue(); err != nil {
			return Entity{}, fmt.Errorf("entity #%d: %w", id, err)
		}
		return entity, nil
	}

	entity.Type = d.parseKeyword()
	if entity.Type == "" {
		return Entity{}, fmt.Errorf("entity #%d: missing type", id)
	}
	d.skipSpace()
	if d.pos >= len(d.src) || d.src[d.pos] != '(' {
		return Entity{}, fmt.Errorf("entity #%d: expected argument list", id)
	}
	args, err := d.parseValue()
	if err != nil {
		return Entity{}, fmt.Errorf("entity #%d: %w", id, err)
	}
	entity.Args = args.List
	return entity, nil
}

func (d *decoder) parseValue() (Value, error) {
	d.skipSpace()
	if d.pos >= len(d.src) {
		return Value{}, fmt.Errorf("unexpected end of record")
	}

	switch c := d.src[d.pos]; {
	case c == '$':
		d.pos++
		return Value{Kind: KindNull}, nil

	case c == '*':
		d.pos++
		return Value{Kind: KindDerived}, nil

	case c == '#':
		d.pos++
		ref, err := d.parseInt()
		if err != nil {
			return Value{}, fmt.Errorf("bad reference: %w", err)
		}
		return Value{Kind: KindRef, Ref: ref}, nil

	case c == '\'':
		return d.parseString()

	case c == '.':
		return d.parseEnum()

	case c == '(':
		d.pos++
		list := Value{Kind: KindList}
		for {
			d.skipSpace()
			if d.pos >= len(d.src) {
				return Value{}, fmt.Errorf("unterminated list")
			}
			if d.src[d.pos] == ')' {
				d.pos++
				return list, nil
			}
			if d.src[d.pos] == ',' {
				d.pos++
				continue
			}
			v, err := d.parseValue()
			if err != nil {
				return Value{}, err
			}
			list.List = append(list.List, v)
		}

	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return d.parseNumber()

	default:
		// Typed value or a bare keyword inside a complex instance.
		name := d.parseKeyword()
		if name == "" {
			return Value{}, fmt.Errorf("unexpected character %q", c)
		}
		d.skipSpace()
		v := Value{Kind: KindTyped, Str: name}
		if d.pos < len(d.src) && d.src[d.pos] == '(' {
			inner, err := d.parseValue()
			if err != nil {
				return Value{}, err
			}
			v.List = inner.List
		}
		return v, nil
	}
}

func (d *decoder) parseString() (Value, error) {
	d.pos++ // opening quote
	var out []byte
	for d.pos < len(d.src) {
		c := d.src[d.pos]
		if c == '\'' {
			if d.pos+1 < len(d.src) && d.src[d.pos+1] == '\'' {
				out = append(out, '\'')
				d.pos += 2
				continue
			}
			d.pos++
			return Value{Kind: KindString, Str: string(out)}, nil
		}
		out = append(out, c)
		d.pos++
	}
	return Value{}, fmt.Errorf("unterminated string")
}

func (d *decoder) parseEnum() (Value, error) {
	d.pos++ // opening dot
	start := d.pos
	for d.pos < len(d.src) && d.src[d.pos] != '.' {
		d.pos++
	}
	if d.pos >= len(d.src) {
		return Value{}, fmt.Errorf("unterminated enumeration")
	}
	name := string(d.src[start:d.pos])
	d.pos++ // closing dot
	return Value{Kind: KindEnum, Str: name}, nil
}

func (d *decoder) parseNumber() (Value, error) {
	start := d.pos
	for d.pos < len(d.src) {
		c := d.src[d.pos]
		if c == '-' || c == '+' || c == '.' || c == 'E' || c == 'e' || (c >= '0' && c <= '9') {
			d.pos++
			continue
		}
		break
	}
	text := string(d.src[start:d.pos])
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Value{}, fmt.Errorf("bad number %q", text)
	}
	return Value{Kind: KindNumber, Number: n}, nil
}

func (d *decoder) parseInt() (int, error) {
	start := d.pos
	for d.pos < len(d.src) && d.src[d.pos] >= '0' && d.src[d.pos] <= '9' {
		d.pos++
	}
	if d.pos == start {
		return 0, fmt.Errorf("expected digits")
	}
	return strconv.Atoi(string(d.src[start:d.pos]))
}

func (d *decoder) parseKeyword() string {
	start := d.pos
	for d.pos < len(d.src) {
		c := d.src[d.pos]
		if c == '_' || c == '-' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			d.pos++
			continue
		}
		break
	}
	return string(d.src[start:d.pos])
}

func (d *decoder) skipSpace() {
	for d.pos < len(d.src) {
		switch d.src[d.pos] {
		case ' ', '\t', '\r', '\n':
			d.pos++
		default:
			return
		}
	}
}

// stripComments removes /* ... */ blocks, respecting string literals.
func stripComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '\'' {
			inString = !inString
		}
		if !inString && c == '/' && i+1 < len(data) && data[i+1] == '*' {
			end := i + 2
			for end+1 < len(data) && !(data[end] == '*' && data[end+1] == '/') {
				end++
			}
			i = end + 1
			continue
		}
		out = append(out, c)
	}
	return out
}

func truncateForError(record []byte) string {
	const limit = 60
	if len(record) <= limit {
		return string(record)
	}
	return string(record[:limit]) + "..."
}
