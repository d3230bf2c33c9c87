package dummydb

import (
	"sync"

	"github.com/trezcool/reliefbridge/core/order"
	"github.com/trezcool/reliefbridge/core/relief"
	"github.com/trezcool/reliefbridge/core/user"
)

type (
	DB struct {
		user    *userTable
		request *requestTable
		order   *orderTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	requestTable struct {
		sync.RWMutex
		table map[string]*relief.Request
	}

	orderTable struct {
		sync.RWMutex
		table map[string]*order.Order
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:    &userTable{table: make(map[string]*user.User)},
		request: &requestTable{table: make(map[string]*relief.Request)},
		order:   &orderTable{table: make(map[string]*order.Order)},
	}
	return db, nil
}
