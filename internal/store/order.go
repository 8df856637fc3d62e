package store

import (
	"fmt"
	"log"
	"path"
	"path/filepath"
	"sync"
)

// CoffeeOrder is one captured coffee order.
type CoffeeOrder struct {
	Drink  string   `json:"drink"`
	Size   string   `json:"size"`
	Milk   string   `json:"milk"`
	Extras []string `json:"extras"`
	Name   string   `json:"name"`
}

// NewCoffeeOrder returns an empty order ready to be filled field by field.
func NewCoffeeOrder() *CoffeeOrder {
	return &CoffeeOrder{Extras: []string{}}
}

// OrderStore writes one JSON file per order under its directory, named by
// the customer's sanitized display name.
type OrderStore struct {
	dir    string
	mirror Mirror
	mu     sync.Mutex
}

func NewOrderStore(dir string) (*OrderStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &OrderStore{dir: dir}, nil
}

// WithMirror enables best-effort uploads of saved documents.
func (s *OrderStore) WithMirror(m Mirror) *OrderStore {
	s.mirror = m
	return s
}

// Save writes the order as <sanitized name>.json and returns the filename.
// When that file already exists a numeric suffix keeps earlier orders intact.
func (s *OrderStore) Save(order *CoffeeOrder) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.Extras == nil {
		order.Extras = []string{}
	}
	base := SanitizeName(order.Name)
	name := base + ".json"
	for i := 2; fileExists(filepath.Join(s.dir, name)); i++ {
		name = fmt.Sprintf("%s_%d.json", base, i)
	}
	data, err := writeRecord(filepath.Join(s.dir, name), order)
	if err != nil {
		return "", err
	}
	s.mirrorUpload(name, data)
	return name, nil
}

// Load reads one saved order file by filename, as returned by Save.
func (s *OrderStore) Load(filename string) (*CoffeeOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var order CoffeeOrder
	if err := readRecord(filepath.Join(s.dir, filename), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderStore) mirrorUpload(name string, data []byte) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Upload(path.Join("coffee_orders", name), "application/json", data); err != nil {
		log.Printf("mirror upload %s failed: %v", name, err)
	}
}
