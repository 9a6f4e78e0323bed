package cart

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeSnapshot serialises the full cart as the persisted blob format:
//
//	{"lines":[{"lineId":...,"displayName":...,"unitPrice":...,"quantity":...,"imageRef":...}]}
//
// The blob is a complete overwrite snapshot; there is no incremental diff
// format. The same encoding is used for the device-local store and the
// remote cart document payload.
func EncodeSnapshot(c Cart) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range c.Lines() {
					encodeLine(e, l)
				}
			})
		})
	})
	return e.Bytes()
}

func encodeLine(e *jx.Encoder, l Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("lineId", func(e *jx.Encoder) { e.Str(l.ID) })
		e.Field("displayName", func(e *jx.Encoder) { e.Str(l.DisplayName) })
		e.Field("unitPrice", func(e *jx.Encoder) { e.Raw([]byte(l.UnitPrice.String())) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("imageRef", func(e *jx.Encoder) { e.Str(l.ImageRef) })
	})
}

// DecodeSnapshot parses a persisted cart blob. Unknown fields are
// skipped so older blobs with extra data remain readable. The decoded
// lines pass through New, which re-establishes the cart invariants.
func DecodeSnapshot(data []byte) (Cart, error) {
	var lines []Line
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "lines" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			l, err := decodeLine(d)
			if err != nil {
				return err
			}
			lines = append(lines, l)
			return nil
		})
	}); err != nil {
		return Cart{}, errors.Wrap(err, "decode cart snapshot")
	}
	return New(lines), nil
}

func decodeLine(d *jx.Decoder) (Line, error) {
	var l Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "lineId":
			v, err := d.Str()
			l.ID = v
			return err
		case "displayName":
			v, err := d.Str()
			l.DisplayName = v
			return err
		case "unitPrice":
			n, err := d.Num()
			if err != nil {
				return err
			}
			// Accepts both bare and string-quoted numbers; quoted is what
			// encoding/json produces for decimal values.
			price, err := decimal.NewFromString(strings.Trim(n.String(), `"`))
			if err != nil {
				return errors.Wrap(err, "unit price")
			}
			l.UnitPrice = price
			return nil
		case "quantity":
			v, err := d.Int()
			l.Quantity = v
			return err
		case "imageRef":
			v, err := d.Str()
			l.ImageRef = v
			return err
		default:
			return d.Skip()
		}
	})
	return l, err
}
