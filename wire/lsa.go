// Package wire implements the LSA wire format of spec.md §6: a JSON object
// with fields "id", "vizinhos" (neighbor name -> (ip, cost)), and "seq".
// The field name "vizinhos" ("neighbors" in Portuguese) is kept verbatim,
// not translated — it comes directly from the original implementation
// (original_source/router/dycastra.py) and spec.md nails the wire format
// down explicitly, so an implementation cannot rename it without breaking
// interop with that reference.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/netip"
)

// Cost is spec.md §9's sum type `Int(i64) | Float(f64)`, collapsed to a
// single float64 representation that preserves whether the value arrived
// (and should be re-emitted) as a JSON integer or a JSON float. Comparison
// for Dijkstra always happens on the float value, so static and measured
// costs compare consistently regardless of origin.
type Cost struct {
	Value float64
	isInt bool
}

// IntCost builds a Cost that serializes as a JSON integer (static mode).
func IntCost(v int) Cost {
	return Cost{Value: float64(v), isInt: true}
}

// FloatCost builds a Cost that serializes as a JSON float (measured mode).
func FloatCost(v float64) Cost {
	return Cost{Value: v, isInt: false}
}

func (c Cost) MarshalJSON() ([]byte, error) {
	if c.isInt {
		return json.Marshal(int64(c.Value))
	}
	b, err := json.Marshal(c.Value)
	if err != nil {
		return nil, err
	}
	// encoding/json writes a whole float64 without a fraction ("5"), which
	// would read back as an integer; keep it a JSON float.
	if !bytes.ContainsAny(b, ".eE") {
		b = append(b, ".0"...)
	}
	return b, nil
}

func (c *Cost) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("cost: %w", err)
	}
	c.Value = f
	// A JSON number with no '.' or exponent round-trips as an integer;
	// recipients MUST accept both (spec.md §6), and we preserve the
	// distinction purely so re-flooded bytes need not be re-derived.
	c.isInt = !bytes.ContainsAny(data, ".eE")
	return nil
}

// NeighborAd is one entry of an LSA's neighbor map: the ip and cost
// advertised for a given neighbor name. On the wire it is the 2-element
// JSON array ["<ip>", <cost>].
type NeighborAd struct {
	IP   netip.Addr
	Cost Cost
}

func (n NeighborAd) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{n.IP.String(), n.Cost})
}

func (n *NeighborAd) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("neighbor advertisement: %w", err)
	}

	var ipStr string
	if err := json.Unmarshal(raw[0], &ipStr); err != nil {
		return fmt.Errorf("neighbor advertisement ip: %w", err)
	}
	ip, err := netip.ParseAddr(ipStr)
	if err != nil || !ip.Is4() {
		return fmt.Errorf("neighbor advertisement: invalid ipv4 %q", ipStr)
	}
	n.IP = ip

	var cost Cost
	if err := cost.UnmarshalJSON(raw[1]); err != nil {
		return fmt.Errorf("neighbor advertisement cost: %w", err)
	}
	n.Cost = cost

	return nil
}

// LSA is the wire-visible record of one router's local view (spec.md §3).
// It carries no timestamp or lifetime: freshness is decided entirely by
// (ID, Seq).
type LSA struct {
	ID        netip.Addr
	Neighbors map[string]NeighborAd
	Seq       uint64
}

type lsaJSON struct {
	ID        string                `json:"id"`
	Neighbors map[string]NeighborAd `json:"vizinhos"`
	Seq       uint64                `json:"seq"`
}

func (l LSA) MarshalJSON() ([]byte, error) {
	neighbors := l.Neighbors
	if neighbors == nil {
		neighbors = map[string]NeighborAd{}
	}
	return json.Marshal(lsaJSON{ID: l.ID.String(), Neighbors: neighbors, Seq: l.Seq})
}

func (l *LSA) UnmarshalJSON(data []byte) error {
	var raw lsaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("lsa: %w", err)
	}

	id, err := netip.ParseAddr(raw.ID)
	if err != nil || !id.Is4() {
		return fmt.Errorf("lsa: invalid router id %q", raw.ID)
	}

	l.ID = id
	l.Seq = raw.Seq
	l.Neighbors = raw.Neighbors
	if l.Neighbors == nil {
		l.Neighbors = map[string]NeighborAd{}
	}
	return nil
}

// Encode serializes an LSA to the bytes that travel on the wire. The
// Receiver/Flooder (spec.md §4.C) re-forwards these exact bytes rather than
// re-encoding, so that byte-identity is preserved hop by hop.
func Encode(lsa LSA) ([]byte, error) {
	return json.Marshal(lsa)
}

// Decode parses a received UDP payload into an LSA. Malformed input is
// returned as an error and must be dropped by the caller, not treated as
// fatal (spec.md §7).
func Decode(data []byte) (LSA, error) {
	var lsa LSA
	if err := json.Unmarshal(data, &lsa); err != nil {
		return LSA{}, err
	}
	return lsa, nil
}
