package tensor

// Param names a learnable tensor so an external optimizer can address it.
type Param struct {
	Name   string
	Tensor *Tensor
}
