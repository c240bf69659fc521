// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package kindregistry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	extv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
)

// Well-known types that serialize as strings rather than as their struct
// shape. The walker must not descend into them.
var (
	quantityType    = reflect.TypeOf(resource.Quantity{})
	timeType        = reflect.TypeOf(metav1.Time{})
	microTimeType   = reflect.TypeOf(metav1.MicroTime{})
	durationType    = reflect.TypeOf(metav1.Duration{})
	stdTimeType     = reflect.TypeOf(time.Time{})
	intOrStringType = reflect.TypeOf(intstr.IntOrString{})
	rawExtType      = reflect.TypeOf(runtime.RawExtension{})
)

// GenerateSchema walks a spec struct type and emits a self-contained OpenAPI
// v3 structural schema. Nested types are inlined recursively, never emitted
// as references. A type the walker cannot express returns an error; callers
// treat that as fatal for the whole generation so partial CRD sets are never
// produced.
func GenerateSchema(specType reflect.Type) (*extv1.JSONSchemaProps, error) {
	if specType == nil {
		return nil, fmt.Errorf("nil spec type")
	}
	if specType.Kind() == reflect.Pointer {
		specType = specType.Elem()
	}
	if specType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("spec type must be a struct, got %s", specType.Kind())
	}
	return schemaForType(specType, map[reflect.Type]bool{})
}

// schemaForType converts one Go type. The seen set holds struct types on the
// current walk path; revisiting one means the type is recursive and cannot be
// inlined into a self-contained document.
func schemaForType(t reflect.Type, seen map[reflect.Type]bool) (*extv1.JSONSchemaProps, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t {
	case quantityType, durationType:
		return &extv1.JSONSchemaProps{Type: "string"}, nil
	case timeType, microTimeType, stdTimeType:
		return &extv1.JSONSchemaProps{Type: "string", Format: "date-time"}, nil
	case intOrStringType:
		return &extv1.JSONSchemaProps{XIntOrString: true}, nil
	case rawExtType:
		return &extv1.JSONSchemaProps{Type: "object", XPreserveUnknownFields: ptr.To(true)}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return &extv1.JSONSchemaProps{Type: "string"}, nil
	case reflect.Bool:
		return &extv1.JSONSchemaProps{Type: "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return &extv1.JSONSchemaProps{Type: "integer", Format: "int32"}, nil
	case reflect.Int64, reflect.Uint64:
		return &extv1.JSONSchemaProps{Type: "integer", Format: "int64"}, nil
	case reflect.Float32, reflect.Float64:
		return &extv1.JSONSchemaProps{Type: "number"}, nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			// []byte serializes as base64.
			return &extv1.JSONSchemaProps{Type: "string", Format: "byte"}, nil
		}
		item, err := schemaForType(t.Elem(), seen)
		if err != nil {
			return nil, fmt.Errorf("array item: %w", err)
		}
		return &extv1.JSONSchemaProps{
			Type:  "array",
			Items: &extv1.JSONSchemaPropsOrArray{Schema: item},
		}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key must be a string, got %s", t.Key())
		}
		if t.Elem().Kind() == reflect.Interface {
			return &extv1.JSONSchemaProps{Type: "object", XPreserveUnknownFields: ptr.To(true)}, nil
		}
		value, err := schemaForType(t.Elem(), seen)
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		return &extv1.JSONSchemaProps{
			Type:                 "object",
			AdditionalProperties: &extv1.JSONSchemaPropsOrBool{Schema: value},
		}, nil
	case reflect.Interface:
		return &extv1.JSONSchemaProps{Type: "object", XPreserveUnknownFields: ptr.To(true)}, nil
	case reflect.Struct:
		if seen[t] {
			return nil, fmt.Errorf("recursive type %s cannot be inlined", t)
		}
		seen[t] = true
		defer delete(seen, t)
		return schemaForStruct(t, seen)
	default:
		return nil, fmt.Errorf("unsupported type %s (%s)", t, t.Kind())
	}
}

func schemaForStruct(t reflect.Type, seen map[reflect.Type]bool) (*extv1.JSONSchemaProps, error) {
	schema := &extv1.JSONSchemaProps{
		Type:       "object",
		Properties: map[string]extv1.JSONSchemaProps{},
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, opts := parseJSONTag(field)
		if name == "-" {
			continue
		}

		// Untagged or inline embedded structs flatten into the parent.
		if field.Anonymous && (name == "" || opts.inline) {
			embedded, err := schemaForType(field.Type, seen)
			if err != nil {
				return nil, fmt.Errorf("embedded field %s: %w", field.Name, err)
			}
			for k, v := range embedded.Properties {
				schema.Properties[k] = v
			}
			schema.Required = append(schema.Required, embedded.Required...)
			continue
		}
		if name == "" {
			name = field.Name
		}

		prop, err := schemaForType(field.Type, seen)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		if doc := fieldDescription(field); doc != "" {
			prop.Description = doc
		}
		schema.Properties[name] = *prop

		if !opts.omitempty && field.Type.Kind() != reflect.Pointer {
			schema.Required = append(schema.Required, name)
		}
	}

	sort.Strings(schema.Required)
	return schema, nil
}

type jsonTagOptions struct {
	omitempty bool
	inline    bool
}

func parseJSONTag(field reflect.StructField) (string, jsonTagOptions) {
	tag, ok := field.Tag.Lookup("json")
	if !ok {
		return "", jsonTagOptions{}
	}
	parts := strings.Split(tag, ",")
	opts := jsonTagOptions{}
	for _, p := range parts[1:] {
		switch p {
		case "omitempty":
			opts.omitempty = true
		case "inline":
			opts.inline = true
		}
	}
	return parts[0], opts
}

// fieldDescription picks up an explicit description tag. Go doc comments are
// not available through reflection, so types that want descriptions in the
// served schema carry them as tags.
func fieldDescription(field reflect.StructField) string {
	return field.Tag.Get("description")
}

// statusSchema is the fixed status subschema shared by every generated CRD.
// It matches the observed-state contract of the reconcilers: a coarse phase,
// standard conditions, the observed generation, and room for kind-specific
// fields.
func statusSchema() extv1.JSONSchemaProps {
	conditionSchema := extv1.JSONSchemaProps{
		Type: "object",
		Properties: map[string]extv1.JSONSchemaProps{
			"type":               {Type: "string"},
			"status":             {Type: "string"},
			"reason":             {Type: "string"},
			"message":            {Type: "string"},
			"observedGeneration": {Type: "integer", Format: "int64"},
			"lastTransitionTime": {Type: "string", Format: "date-time"},
		},
		Required: []string{"message", "reason", "status", "type"},
	}

	return extv1.JSONSchemaProps{
		Type: "object",
		Properties: map[string]extv1.JSONSchemaProps{
			"phase": {Type: "string"},
			"conditions": {
				Type:  "array",
				Items: &extv1.JSONSchemaPropsOrArray{Schema: &conditionSchema},
			},
			"observedGeneration": {Type: "integer", Format: "int64"},
		},
		XPreserveUnknownFields: ptr.To(true),
	}
}
