/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package schema

import (
	"fmt"
	"io"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type fileSpec struct {
	Objects []objectSpec `mapstructure:"objects" yaml:"objects"`
}

type objectSpec struct {
	Name         string       `mapstructure:"name" yaml:"name"`
	Kind         string       `mapstructure:"kind" yaml:"kind,omitempty"`
	Description  string       `mapstructure:"description" yaml:"description,omitempty"`
	Columns      []columnSpec `mapstructure:"columns" yaml:"columns"`
	JoinableKeys []string     `mapstructure:"joinable_keys" yaml:"joinable_keys,omitempty"`
}

type columnSpec struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Type     string `mapstructure:"type" yaml:"type"`
	Nullable bool   `mapstructure:"nullable" yaml:"nullable,omitempty"`
}

// Load reads a registry definition file. The format follows the file
// extension (yaml, json or toml); objects live under the "objects" key.
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	reg, err := FromViper(v, "objects")
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return reg, nil
}

// FromViper decodes the object list stored under key.
func FromViper(v *viper.Viper, key string) (*Registry, error) {
	var specs []objectSpec
	if err := v.UnmarshalKey(key, &specs); err != nil {
		return nil, fmt.Errorf("failed to decode schema objects: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no schema objects defined under %q", key)
	}
	objects := make([]Object, 0, len(specs))
	for _, s := range specs {
		objects = append(objects, s.object())
	}
	return New(objects...)
}

func (s objectSpec) object() Object {
	o := Object{
		Name:         s.Name,
		Kind:         Kind(s.Kind),
		Description:  s.Description,
		JoinableKeys: s.JoinableKeys,
	}
	for _, c := range s.Columns {
		o.Columns = append(o.Columns, Column{Name: c.Name, Type: c.Type, Nullable: c.Nullable})
	}
	return o
}

// Export writes the registry as YAML that Load accepts.
func (r *Registry) Export(w io.Writer) error {
	var doc fileSpec
	for _, o := range r.Objects() {
		s := objectSpec{
			Name:         o.Name,
			Kind:         string(o.Kind),
			Description:  o.Description,
			JoinableKeys: o.JoinableKeys,
		}
		for _, c := range o.Columns {
			s.Columns = append(s.Columns, columnSpec{Name: c.Name, Type: c.Type, Nullable: c.Nullable})
		}
		doc.Objects = append(doc.Objects, s)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return enc.Close()
}
