package cache

// Nop remembers nothing.
type Nop struct{}

func (Nop) Get(string) (any, bool)        { return nil, false }
func (Nop) Put(string, any, ...PutOption) {}
func (Nop) Delete(string)                 {}
func (Nop) Len() int                      { return 0 }

func NewNop() Nop { return Nop{} }

var _ Cache = Nop{}
