package tiff

import (
	"fmt"
	"strings"
)

// GeoKey is one raw georeferencing key. The value is a uint16, a []float64,
// or a string depending on where the key directory stores it. Semantic
// interpretation of keys belongs to an external geodesy layer.
type GeoKey struct {
	ID    uint16
	Value any
}

// GeoKeys decodes the GeoKey directory of the IFD, resolving double and
// ASCII parameters from their companion tags. Returns nil when the
// directory carries no GeoKey tag.
func (d *IFD) GeoKeys() ([]GeoKey, error) {
	dirTag, ok := d.Tag(TagGeoKeyDirectory)
	if !ok {
		return nil, nil
	}
	dir, err := dirTag.UintSlice16()
	if err != nil {
		return nil, err
	}
	if len(dir) < 4 {
		return nil, fmt.Errorf("%w: GeoKey directory has %d shorts, need at least 4", ErrMalformedTag, len(dir))
	}
	numKeys := int(dir[3])
	if len(dir) < 4+numKeys*4 {
		return nil, fmt.Errorf("%w: GeoKey directory declares %d keys but holds %d shorts",
			ErrMalformedTag, numKeys, len(dir))
	}

	var doubles []float64
	if t, ok := d.Tag(TagGeoDoubleParams); ok {
		if doubles, err = t.Float64Slice(); err != nil {
			return nil, err
		}
	}
	var ascii string
	if t, ok := d.Tag(TagGeoAsciiParams); ok {
		if ascii, err = t.ASCII(); err != nil {
			return nil, err
		}
	}

	keys := make([]GeoKey, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		entry := dir[4+i*4 : 8+i*4]
		keyID, loc, count, valueOff := entry[0], entry[1], int(entry[2]), int(entry[3])

		var value any
		switch loc {
		case 0:
			// Value stored directly in the offset field.
			value = entry[3]
		case TagGeoDoubleParams:
			if valueOff+count > len(doubles) {
				return nil, fmt.Errorf("%w: GeoKey %d points past double params", ErrMalformedTag, keyID)
			}
			value = append([]float64(nil), doubles[valueOff:valueOff+count]...)
		case TagGeoAsciiParams:
			if valueOff+count > len(ascii) {
				return nil, fmt.Errorf("%w: GeoKey %d points past ascii params", ErrMalformedTag, keyID)
			}
			// GeoTIFF delimits ascii values with '|' in place of NUL.
			value = strings.TrimSuffix(ascii[valueOff:valueOff+count], "|")
		case TagGeoKeyDirectory:
			if valueOff+count > len(dir) {
				return nil, fmt.Errorf("%w: GeoKey %d points past key directory", ErrMalformedTag, keyID)
			}
			shorts := append([]uint16(nil), dir[valueOff:valueOff+count]...)
			value = shorts
		default:
			return nil, fmt.Errorf("%w: GeoKey %d stored in unknown tag %d", ErrMalformedTag, keyID, loc)
		}
		keys = append(keys, GeoKey{ID: keyID, Value: value})
	}
	return keys, nil
}
