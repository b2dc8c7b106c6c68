package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed data/categories.json
var defaultCategories []byte

// Category is a themed word list that secret words are drawn from.
type Category struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	ObjectLabel string   `json:"objectLabel"`
	Items       []string `json:"items"`
}

type Categories struct {
	list []Category
	byID map[string]*Category
}

func parseCategories(data []byte) (*Categories, error) {
	var list []Category
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing categories: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("parsing categories: no categories defined")
	}

	c := &Categories{
		list: list,
		byID: make(map[string]*Category, len(list)),
	}
	for i := range c.list {
		id := c.list[i].ID
		if id == "" {
			return nil, fmt.Errorf("parsing categories: category %d has no id", i)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("parsing categories: duplicate id %q", id)
		}
		c.byID[id] = &c.list[i]
	}

	return c, nil
}

// loadCategories reads categories from path, or the built-in set when path is empty.
func loadCategories(path string) (*Categories, error) {
	if path == "" {
		return parseCategories(defaultCategories)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading categories: %w", err)
	}

	return parseCategories(data)
}

func (c *Categories) Get(id string) (*Category, bool) {
	cat, ok := c.byID[id]
	return cat, ok
}

// Default is the category new rooms start with.
func (c *Categories) Default() *Category {
	return &c.list[0]
}

func (c *Categories) List() []Category {
	return c.list
}
