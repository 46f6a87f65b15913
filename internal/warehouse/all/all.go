// Package all wires the built-in warehouse backends into the factory.
//
// Importing it (even as a blank import) runs each backend's init function,
// which registers its opener with the warehouse package. After that,
// warehouse.Open can resolve the kinds "postgres" and "sqlite" without the
// caller importing either backend directly.
package all

import (
	_ "integrador/internal/warehouse/postgres"
	_ "integrador/internal/warehouse/sqlite"
)
