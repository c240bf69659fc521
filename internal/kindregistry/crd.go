// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package kindregistry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	extv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	"github.com/crucible-dev/crucible/internal/labels"
	"github.com/crucible-dev/crucible/pkg/hash"
)

// storedHashFile records the content hash next to emitted CRD files so a
// later run can skip regeneration when nothing changed.
const storedHashFile = ".schema-hash"

// BuildCRD generates the CustomResourceDefinition for one descriptor. The
// manifest carries a schema hash annotation used by Apply to skip no-op
// updates.
func BuildCRD(desc Descriptor) (*extv1.CustomResourceDefinition, error) {
	desc = desc.withDefaults()

	specSchema, err := GenerateSchema(desc.SpecType)
	if err != nil {
		return nil, fmt.Errorf("generate schema for %s: %w", desc.key(), err)
	}

	root := &extv1.JSONSchemaProps{
		Type: "object",
		Properties: map[string]extv1.JSONSchemaProps{
			"apiVersion": {Type: "string"},
			"kind":       {Type: "string"},
			"metadata":   {Type: "object"},
			"spec":       *specSchema,
			"status":     statusSchema(),
		},
		Required: []string{"spec"},
	}

	schemaHash, err := hashJSON(root)
	if err != nil {
		return nil, fmt.Errorf("hash schema for %s: %w", desc.key(), err)
	}

	return &extv1.CustomResourceDefinition{
		TypeMeta: metav1.TypeMeta{
			APIVersion: extv1.SchemeGroupVersion.String(),
			Kind:       "CustomResourceDefinition",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: desc.CRDName(),
			Labels: map[string]string{
				labels.LabelKeyManagedBy: labels.LabelValueManagedBy,
			},
			Annotations: map[string]string{
				labels.AnnotationKeySchemaHash: schemaHash,
			},
		},
		Spec: extv1.CustomResourceDefinitionSpec{
			Group: desc.Group,
			Names: extv1.CustomResourceDefinitionNames{
				Plural:     desc.Plural,
				Singular:   desc.Singular,
				Kind:       desc.Kind,
				ListKind:   desc.Kind + "List",
				ShortNames: desc.ShortNames,
			},
			Scope: desc.Scope,
			Versions: []extv1.CustomResourceDefinitionVersion{
				{
					Name:    desc.Version,
					Served:  true,
					Storage: true,
					Schema: &extv1.CustomResourceValidation{
						OpenAPIV3Schema: root,
					},
					Subresources: &extv1.CustomResourceSubresources{
						Status: &extv1.CustomResourceSubresourceStatus{},
					},
				},
			},
		},
	}, nil
}

// ContentHash hashes the generated schemas of every registered kind in
// sorted group/version/kind order. Two registries with the same kinds and
// spec types produce the same hash.
func (r *Registry) ContentHash() (string, error) {
	type entry struct {
		Group   string                 `json:"group"`
		Version string                 `json:"version"`
		Kind    string                 `json:"kind"`
		Scope   extv1.ResourceScope    `json:"scope"`
		Schema  *extv1.JSONSchemaProps `json:"schema"`
	}

	descs := r.Descriptors()
	entries := make([]entry, 0, len(descs))
	for _, d := range descs {
		schema, err := GenerateSchema(d.SpecType)
		if err != nil {
			return "", fmt.Errorf("generate schema for %s: %w", d.key(), err)
		}
		entries = append(entries, entry{
			Group:   d.Group,
			Version: d.Version,
			Kind:    d.Kind,
			Scope:   d.Scope,
			Schema:  schema,
		})
	}
	return hashJSON(entries)
}

// GenerateAll builds the CRD manifests for every registered kind. When the
// content hash matches the one observed by the previous call and force is
// unset, generation is skipped and changed is false. A schema failure on any
// kind aborts the whole generation; partial CRD sets are never returned.
func (r *Registry) GenerateAll(force bool) (crds []*extv1.CustomResourceDefinition, changed bool, err error) {
	hash, err := r.ContentHash()
	if err != nil {
		return nil, false, err
	}

	r.mu.RLock()
	unchanged := !force && r.lastHash == hash
	r.mu.RUnlock()
	if unchanged {
		return nil, false, nil
	}

	for _, d := range r.Descriptors() {
		crd, err := BuildCRD(d)
		if err != nil {
			return nil, false, err
		}
		crds = append(crds, crd)
	}

	r.mu.Lock()
	r.lastHash = hash
	r.mu.Unlock()
	return crds, true, nil
}

// Apply creates or updates the given CRDs on the cluster. A CRD whose schema
// hash annotation already matches is skipped so repeated startups do not
// churn the apiserver.
func Apply(ctx context.Context, c client.Client, logger *slog.Logger, crds []*extv1.CustomResourceDefinition) error {
	for _, crd := range crds {
		desired := crd.DeepCopy()

		var existing extv1.CustomResourceDefinition
		err := c.Get(ctx, types.NamespacedName{Name: desired.Name}, &existing)
		switch {
		case apierrors.IsNotFound(err):
			if err := c.Create(ctx, desired); err != nil {
				return fmt.Errorf("create CRD %s: %w", desired.Name, err)
			}
			logger.Info("created CRD", "name", desired.Name)
		case err != nil:
			return fmt.Errorf("get CRD %s: %w", desired.Name, err)
		default:
			if existing.Annotations[labels.AnnotationKeySchemaHash] == desired.Annotations[labels.AnnotationKeySchemaHash] {
				logger.Debug("CRD schema unchanged", "name", desired.Name)
				continue
			}
			desired.ResourceVersion = existing.ResourceVersion
			if err := c.Update(ctx, desired); err != nil {
				return fmt.Errorf("update CRD %s: %w", desired.Name, err)
			}
			logger.Info("updated CRD", "name", desired.Name)
		}
	}
	return nil
}

// WriteFiles emits one YAML document per CRD into dir, named
// <plural>.<group>.yaml.
func WriteFiles(dir string, crds []*extv1.CustomResourceDefinition) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, crd := range crds {
		raw, err := yaml.Marshal(crd)
		if err != nil {
			return fmt.Errorf("marshal CRD %s: %w", crd.Name, err)
		}
		path := filepath.Join(dir, crd.Name+".yaml")
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// ReadStoredHash returns the hash recorded by a previous WriteStoredHash, or
// empty when none exists.
func ReadStoredHash(dir string) string {
	raw, err := os.ReadFile(filepath.Join(dir, storedHashFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// WriteStoredHash records the content hash next to the emitted files.
func WriteStoredHash(dir, hash string) error {
	return os.WriteFile(filepath.Join(dir, storedHashFile), []byte(hash+"\n"), 0o644)
}

func hashJSON(v any) (string, error) {
	return hash.JSONHex(v)
}
