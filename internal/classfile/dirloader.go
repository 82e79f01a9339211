package classfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// jsonDoc is the on-disk shape of a single "<name>.cfbc.json" file: the
// already-parsed class file, as handed off by the (out-of-scope) class-file
// parser upstream of the Type Manager.
type jsonDoc struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"` // "class" or "interface"
	Super      string   `json:"super,omitempty"`
	Supers     []string `json:"supers,omitempty"` // interfaces only
	Interfaces []string `json:"interfaces,omitempty"`
	Abstract   bool     `json:"abstract,omitempty"`
	Fields     []Field  `json:"fields,omitempty"`
	Methods    []Method `json:"methods,omitempty"`
}

// DirLoader loads class files from "<root>/<name>.cfbc.json" documents,
// caching parsed results. Mirrors ClassFileLoader's cache ownership note in
// spec.md §5: this cache is not safe for concurrent use.
type DirLoader struct {
	root string

	classes    map[string]*ClassFile
	interfaces map[string]*InterfaceFile
	isIface    map[string]bool
}

// NewDirLoader creates a loader rooted at dir.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{
		root:       dir,
		classes:    make(map[string]*ClassFile),
		interfaces: make(map[string]*InterfaceFile),
		isIface:    make(map[string]bool),
	}
}

func (l *DirLoader) path(name string) string {
	return filepath.Join(l.root, name+".cfbc.json")
}

func (l *DirLoader) load(name string) (*jsonDoc, error) {
	b, err := os.ReadFile(l.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("classfile: reading %s: %w", name, err)
	}

	var doc jsonDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("classfile: parsing %s: %w", name, err)
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return &doc, nil
}

// LoadClass implements Loader.
func (l *DirLoader) LoadClass(name string) (*ClassFile, error) {
	if cf, ok := l.classes[name]; ok {
		return cf, nil
	}

	doc, err := l.load(name)
	if err != nil {
		return nil, err
	}
	if doc.Kind == "interface" {
		l.isIface[name] = true
		return nil, fmt.Errorf("%w: %s", ErrIsInterface, name)
	}

	cf := &ClassFile{
		Name:       doc.Name,
		Super:      doc.Super,
		Interfaces: doc.Interfaces,
		Fields:     doc.Fields,
		Methods:    doc.Methods,
		Vis:        Visibility{Abstract: doc.Abstract},
	}
	l.classes[name] = cf
	l.isIface[name] = false
	return cf, nil
}

// LoadInterface implements Loader.
func (l *DirLoader) LoadInterface(name string) (*InterfaceFile, error) {
	if f, ok := l.interfaces[name]; ok {
		return f, nil
	}

	doc, err := l.load(name)
	if err != nil {
		return nil, err
	}
	if doc.Kind != "interface" {
		l.isIface[name] = false
		return nil, fmt.Errorf("%w: %s", ErrIsClass, name)
	}

	f := &InterfaceFile{
		Name:    doc.Name,
		Supers:  doc.Supers,
		Methods: doc.Methods,
	}
	l.interfaces[name] = f
	l.isIface[name] = true
	return f, nil
}

// IsInterface implements Loader.
func (l *DirLoader) IsInterface(name string) (bool, error) {
	if v, ok := l.isIface[name]; ok {
		return v, nil
	}

	// java/lang/Object is the implicit root and is never an interface;
	// avoid requiring a file for it when callers only ask this question.
	if name == "java/lang/Object" {
		l.isIface[name] = false
		return false, nil
	}

	doc, err := l.load(name)
	if err != nil {
		return false, err
	}
	isIface := doc.Kind == "interface"
	l.isIface[name] = isIface
	return isIface, nil
}
