package radius

import (
	"fmt"
	"strconv"

	rad "layeh.com/radius"
	"layeh.com/radius/rfc2865"
)

// MikroTik vendor-specific attributes.
const (
	VendorMikrotik        uint32 = 14988
	mikrotikRateLimitType byte   = 8
)

// An attribute value holds at most 253 bytes; the vendor id and the
// sub-attribute header take 6 of them.
const maxVendorSubValue = 253 - 4 - 2

// Reply attribute names exposed to callers.
const (
	AttrSessionTimeout    = "Session-Timeout"
	AttrIdleTimeout       = "Idle-Timeout"
	AttrReplyMessage      = "Reply-Message"
	AttrClass             = "Class"
	AttrMikrotikRateLimit = "Mikrotik-Rate-Limit"
)

func replyAttributes(p *rad.Packet) map[string]string {
	out := make(map[string]string)

	if v, err := rfc2865.SessionTimeout_Lookup(p); err == nil {
		out[AttrSessionTimeout] = strconv.FormatUint(uint64(v), 10)
	}
	if v, err := rfc2865.IdleTimeout_Lookup(p); err == nil {
		out[AttrIdleTimeout] = strconv.FormatUint(uint64(v), 10)
	}
	if v, err := rfc2865.ReplyMessage_LookupString(p); err == nil {
		out[AttrReplyMessage] = v
	}
	if v, err := rfc2865.Class_LookupString(p); err == nil {
		out[AttrClass] = v
	}
	if v, ok := mikrotikRateLimit(p); ok {
		out[AttrMikrotikRateLimit] = v
	}

	return out
}

// mikrotikRateLimit extracts the Mikrotik-Rate-Limit sub-attribute from the
// first MikroTik Vendor-Specific attribute that carries it.
func mikrotikRateLimit(p *rad.Packet) (string, bool) {
	for _, avp := range p.Attributes {
		if avp.Type != rfc2865.VendorSpecific_Type {
			continue
		}
		vendorID, value, err := rad.VendorSpecific(avp.Attribute)
		if err != nil || vendorID != VendorMikrotik {
			continue
		}
		for len(value) >= 2 {
			typ, length := value[0], int(value[1])
			if length < 2 || length > len(value) {
				break
			}
			if typ == mikrotikRateLimitType {
				return string(value[2:length]), true
			}
			value = value[length:]
		}
	}
	return "", false
}

// MikrotikRateLimitAttribute encodes value as a MikroTik Vendor-Specific attribute.
func MikrotikRateLimitAttribute(value string) (rad.Attribute, error) {
	if len(value) > maxVendorSubValue {
		return nil, fmt.Errorf("mikrotik rate limit: value is %d bytes, at most %d fit", len(value), maxVendorSubValue)
	}
	sub := make([]byte, 0, len(value)+2)
	sub = append(sub, mikrotikRateLimitType, byte(len(value)+2))
	sub = append(sub, value...)
	return rad.NewVendorSpecific(VendorMikrotik, sub)
}
