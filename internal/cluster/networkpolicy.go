// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/crucible-dev/crucible/internal/labels"
)

const (
	defaultDNSNamespace = "kube-system"
)

var defaultDNSPodLabels = map[string]string{"k8s-app": "kube-dns"}

var networkPolicyGVK = schema.GroupVersionKind{
	Group:   "networking.k8s.io",
	Version: "v1",
	Kind:    "NetworkPolicy",
}

// NetworkParams holds the cluster-level inputs for generating project
// isolation NetworkPolicies.
type NetworkParams struct {
	// InfraNamespaces are namespaces whose pods may reach and be reached
	// from project workloads (workspace hub, backend, operator, identity
	// provider).
	InfraNamespaces []string

	// DNSNamespace is the namespace running cluster DNS. Defaults to
	// kube-system.
	DNSNamespace string

	// DNSPodLabels select the DNS pods within DNSNamespace. Defaults to
	// k8s-app=kube-dns.
	DNSPodLabels map[string]string

	// ClusterCIDRs are carved out of the open-internet egress rule so that
	// in-cluster traffic cannot bypass the namespace selectors.
	ClusterCIDRs []string
}

// IsolationPolicyParams holds parameters for generating one project's
// isolation NetworkPolicy.
type IsolationPolicyParams struct {
	ProjectName string
	Namespace   string
	Network     NetworkParams
}

// IsolationPolicyName returns the name of the project isolation policy,
// truncated to k8s limits.
func IsolationPolicyName(project string) string {
	name := fmt.Sprintf("project-%s-isolation", project)
	if len(name) > MaxResourceNameLength {
		name = GenerateName(MaxResourceNameLength, "project", project, "isolation")
	}
	return name
}

// MakeIsolationPolicy returns the project isolation NetworkPolicy as a
// map[string]any for application as an unstructured object. The policy
// selects every pod in the namespace and allows intra-namespace traffic,
// traffic to and from the infrastructure namespaces, egress to cluster DNS,
// and egress to the internet with the cluster CIDRs carved out; everything
// else is denied by policy semantics.
func MakeIsolationPolicy(params IsolationPolicyParams) map[string]any {
	dnsNamespace := params.Network.DNSNamespace
	if dnsNamespace == "" {
		dnsNamespace = defaultDNSNamespace
	}
	dnsPodLabels := params.Network.DNSPodLabels
	if len(dnsPodLabels) == 0 {
		dnsPodLabels = defaultDNSPodLabels
	}

	// Sort copies so the serialized policy is identical between reconcile
	// cycles. Without this, slice and map iteration order causes the policy
	// to differ between cycles, triggering unnecessary updates.
	infra := append([]string(nil), params.Network.InfraNamespaces...)
	sort.Strings(infra)
	cidrs := append([]string(nil), params.Network.ClusterCIDRs...)
	sort.Strings(cidrs)

	intraNamespace := map[string]any{"podSelector": map[string]any{}}

	ingress := []any{
		map[string]any{"from": []any{intraNamespace}},
	}
	for _, ns := range infra {
		ingress = append(ingress, map[string]any{
			"from": []any{namespacePeer(ns)},
		})
	}

	egress := []any{
		map[string]any{"to": []any{intraNamespace}},
		map[string]any{
			"to": []any{
				map[string]any{
					"namespaceSelector": metadataNameSelector(dnsNamespace),
					"podSelector": map[string]any{
						"matchLabels": toAnyMap(dnsPodLabels),
					},
				},
			},
			"ports": []any{
				map[string]any{"protocol": "UDP", "port": int64(53)},
				map[string]any{"protocol": "TCP", "port": int64(53)},
			},
		},
	}
	for _, ns := range infra {
		egress = append(egress, map[string]any{
			"to": []any{namespacePeer(ns)},
		})
	}

	internet := map[string]any{"cidr": "0.0.0.0/0"}
	if len(cidrs) > 0 {
		except := make([]any, 0, len(cidrs))
		for _, cidr := range cidrs {
			except = append(except, cidr)
		}
		internet["except"] = except
	}
	egress = append(egress, map[string]any{
		"to": []any{map[string]any{"ipBlock": internet}},
	})

	return map[string]any{
		"apiVersion": "networking.k8s.io/v1",
		"kind":       "NetworkPolicy",
		"metadata": map[string]any{
			"name":      IsolationPolicyName(params.ProjectName),
			"namespace": params.Namespace,
			"labels": map[string]any{
				labels.LabelKeyManagedBy:   labels.LabelValueManagedBy,
				labels.LabelKeyProjectName: params.ProjectName,
			},
		},
		"spec": map[string]any{
			"podSelector": map[string]any{},
			"policyTypes": []any{"Ingress", "Egress"},
			"ingress":     ingress,
			"egress":      egress,
		},
	}
}

func namespacePeer(namespace string) map[string]any {
	return map[string]any{
		"namespaceSelector": metadataNameSelector(namespace),
	}
}

func metadataNameSelector(namespace string) map[string]any {
	return map[string]any{
		"matchLabels": map[string]any{
			"kubernetes.io/metadata.name": namespace,
		},
	}
}

// toAnyMap converts map[string]string to map[string]any for use in
// unstructured maps.
func toAnyMap(m map[string]string) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

type isolationPolicyHandler struct {
	client client.Client
}

var _ ResourceHandler[ProjectContext] = (*isolationPolicyHandler)(nil)

// NewIsolationPolicyHandler creates a handler for the project isolation
// NetworkPolicy.
func NewIsolationPolicyHandler(c client.Client) ResourceHandler[ProjectContext] {
	return &isolationPolicyHandler{client: c}
}

func (h *isolationPolicyHandler) Name() string {
	return "IsolationPolicy"
}

func (h *isolationPolicyHandler) GetCurrentState(ctx context.Context, pc *ProjectContext) (any, error) {
	name := IsolationPolicyName(pc.Project.Name)
	policy := &unstructured.Unstructured{}
	policy.SetGroupVersionKind(networkPolicyGVK)
	err := h.client.Get(ctx, client.ObjectKey{Namespace: pc.Project.NamespaceName(), Name: name}, policy)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get network policy %q: %w", name, err)
	}
	return policy, nil
}

func (h *isolationPolicyHandler) Create(ctx context.Context, pc *ProjectContext) error {
	policy := &unstructured.Unstructured{Object: h.makePolicy(pc)}
	if err := h.client.Create(ctx, policy); err != nil {
		return fmt.Errorf("failed to create network policy %q: %w", policy.GetName(), err)
	}
	return nil
}

func (h *isolationPolicyHandler) Update(ctx context.Context, pc *ProjectContext, currentState any) error {
	current, ok := currentState.(*unstructured.Unstructured)
	if !ok {
		return errors.New("current state is not an unstructured NetworkPolicy")
	}

	desired := &unstructured.Unstructured{Object: h.makePolicy(pc)}
	desired.SetResourceVersion(current.GetResourceVersion())

	if err := h.client.Update(ctx, desired); err != nil {
		return fmt.Errorf("failed to update network policy %q: %w", desired.GetName(), err)
	}
	return nil
}

func (h *isolationPolicyHandler) Delete(ctx context.Context, pc *ProjectContext) error {
	policy := &unstructured.Unstructured{}
	policy.SetGroupVersionKind(networkPolicyGVK)
	policy.SetNamespace(pc.Project.NamespaceName())
	policy.SetName(IsolationPolicyName(pc.Project.Name))
	if err := client.IgnoreNotFound(h.client.Delete(ctx, policy)); err != nil {
		return fmt.Errorf("failed to delete network policy %q: %w", policy.GetName(), err)
	}
	return nil
}

func (h *isolationPolicyHandler) makePolicy(pc *ProjectContext) map[string]any {
	return MakeIsolationPolicy(IsolationPolicyParams{
		ProjectName: pc.Project.Name,
		Namespace:   pc.Project.NamespaceName(),
		Network:     pc.Network,
	})
}
