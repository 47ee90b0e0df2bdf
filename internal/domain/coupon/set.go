package coupon

// Set is a full snapshot of the coupon sheet keyed by code, in source row order.
type Set struct {
	items []*Coupon
	index map[string]int
}

// NewSet builds a Set. When a code repeats, the first row wins.
func NewSet(coupons []*Coupon) *Set {
	s := &Set{
		items: make([]*Coupon, 0, len(coupons)),
		index: make(map[string]int, len(coupons)),
	}
	for _, c := range coupons {
		if c == nil || c.code == "" {
			continue
		}
		if _, dup := s.index[c.code]; dup {
			continue
		}
		s.index[c.code] = len(s.items)
		s.items = append(s.items, c)
	}
	return s
}

// Get looks up a coupon by sanitized code.
func (s *Set) Get(code string) (*Coupon, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[code]
	if !ok {
		return nil, false
	}
	return s.items[i], true
}

// All returns the coupons in source order.
func (s *Set) All() []*Coupon {
	if s == nil {
		return nil
	}
	return s.items
}

// Len returns the number of coupons.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}
