// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package wire

import "fmt"

// Codec encodes and decodes headers for one connection.
type Codec struct {
	// Order is the byte order agreed for the connection.
	Order ByteOrder

	// TagExtension enables the per-request order tag in header byte 1.
	// When false the byte is reserved and ignored.
	TagExtension bool
}

// NewCodec returns a Codec for the given connection order. Callers
// validate order with ByteOrder.Valid.
func NewCodec(order ByteOrder, tagExtension bool) *Codec {
	return &Codec{Order: order, TagExtension: tagExtension}
}

// requestOrder resolves the order a request header is encoded in.
func (c *Codec) requestOrder(tag byte) (ByteOrder, error) {
	if !c.TagExtension {
		return c.Order, nil
	}
	switch OrderTag(tag) {
	case TagConnection:
		return c.Order, nil
	case TagLittle:
		return LittleEndian, nil
	case TagBig:
		return BigEndian, nil
	default:
		return c.Order, fmt.Errorf("%w: %d", ErrUnknownOrderTag, tag)
	}
}

// DecodeRequest decodes a complete request header. Unknown command values
// are not an error here; callers check Request.Command.Valid.
func (c *Codec) DecodeRequest(b []byte) (Request, error) {
	if len(b) != RequestHeaderSize {
		return Request{}, fmt.Errorf("%w: got %d bytes, want %d",
			ErrShortHeader, len(b), RequestHeaderSize)
	}

	order, err := c.requestOrder(b[offOrderTag])
	if err != nil {
		return Request{Command: Command(b[offCommand]), Order: order}, err
	}

	return Request{
		Command: Command(b[offCommand]),
		Address: load64(b[offAddress:offAddress+8], order),
		Length:  load64(b[offLength:offLength+8], order),
		Order:   order,
	}, nil
}

// EncodeRequest appends the encoding of req to dst. When the tag extension
// is enabled and req.Order differs from the connection order, the order tag
// is set accordingly.
func (c *Codec) EncodeRequest(dst []byte, req Request) []byte {
	var b [RequestHeaderSize]byte
	b[offCommand] = byte(req.Command)

	order := c.Order
	if c.TagExtension && req.Order != c.Order {
		order = req.Order
		b[offOrderTag] = byte(TagLittle)
		if order == BigEndian {
			b[offOrderTag] = byte(TagBig)
		}
	}

	store64(b[offAddress:offAddress+8], req.Address, order)
	store64(b[offLength:offLength+8], req.Length, order)
	return append(dst, b[:]...)
}

// EncodeResponse appends the encoding of resp in the given order to dst.
func EncodeResponse(dst []byte, resp Response, order ByteOrder) []byte {
	var b [ResponseHeaderSize]byte
	store32(b[offResult:offResult+4], resp.Result, order)
	store64(b[offRespLen:offRespLen+8], resp.Length, order)
	return append(dst, b[:]...)
}

// PutResponse encodes resp into the first ResponseHeaderSize bytes of b.
func PutResponse(b []byte, resp Response, order ByteOrder) {
	_ = b[ResponseHeaderSize-1]
	clear(b[:ResponseHeaderSize])
	store32(b[offResult:offResult+4], resp.Result, order)
	store64(b[offRespLen:offRespLen+8], resp.Length, order)
}

// DecodeResponse decodes a response header.
func DecodeResponse(b []byte, order ByteOrder) (Response, error) {
	if len(b) != ResponseHeaderSize {
		return Response{}, fmt.Errorf("%w: got %d bytes, want %d",
			ErrShortHeader, len(b), ResponseHeaderSize)
	}
	return Response{
		Result: load32(b[offResult:offResult+4], order),
		Length: load64(b[offRespLen:offRespLen+8], order),
	}, nil
}
