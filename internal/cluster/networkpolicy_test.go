// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"strings"
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/yaml"
)

// assertYAMLEqual marshals actual to YAML and compares against the expected
// YAML string. It fails the test with a readable diff if they don't match.
func assertYAMLEqual(t *testing.T, name string, actual map[string]any, expectedYAML string) {
	t.Helper()

	actualYAML, err := yaml.Marshal(actual)
	if err != nil {
		t.Fatalf("%s: failed to marshal actual to YAML: %v", name, err)
	}

	// Normalize: unmarshal both sides and re-marshal to get consistent formatting
	var expectedObj, actualObj any
	if err := yaml.Unmarshal([]byte(expectedYAML), &expectedObj); err != nil {
		t.Fatalf("%s: failed to unmarshal expected YAML: %v", name, err)
	}
	if err := yaml.Unmarshal(actualYAML, &actualObj); err != nil {
		t.Fatalf("%s: failed to unmarshal actual YAML: %v", name, err)
	}

	expectedNorm, _ := yaml.Marshal(expectedObj)
	actualNorm, _ := yaml.Marshal(actualObj)

	if string(expectedNorm) != string(actualNorm) {
		t.Errorf("%s: YAML mismatch\n--- expected ---\n%s\n--- actual ---\n%s",
			name, string(expectedNorm), string(actualNorm))
	}
}

func TestMakeIsolationPolicy(t *testing.T) {
	policy := MakeIsolationPolicy(IsolationPolicyParams{
		ProjectName: "proj-x",
		Namespace:   "project-proj-x",
		Network: NetworkParams{
			// Deliberately unsorted to exercise deterministic ordering.
			InfraNamespaces: []string{"workspace-hub", "backend", "keycloak", "crucible-system"},
			ClusterCIDRs:    []string{"192.168.0.0/16", "10.0.0.0/8"},
		},
	})

	assertYAMLEqual(t, "isolation", policy, `
apiVersion: networking.k8s.io/v1
kind: NetworkPolicy
metadata:
  name: project-proj-x-isolation
  namespace: project-proj-x
  labels:
    crucible.dev/managed-by: crucible-operator
    crucible.dev/project: proj-x
spec:
  podSelector: {}
  policyTypes:
    - Ingress
    - Egress
  ingress:
    - from:
        - podSelector: {}
    - from:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: backend
    - from:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: crucible-system
    - from:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: keycloak
    - from:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: workspace-hub
  egress:
    - to:
        - podSelector: {}
    - to:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: kube-system
          podSelector:
            matchLabels:
              k8s-app: kube-dns
      ports:
        - protocol: UDP
          port: 53
        - protocol: TCP
          port: 53
    - to:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: backend
    - to:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: crucible-system
    - to:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: keycloak
    - to:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: workspace-hub
    - to:
        - ipBlock:
            cidr: 0.0.0.0/0
            except:
              - 10.0.0.0/8
              - 192.168.0.0/16
`)
}

func TestMakeIsolationPolicy_NoInfraOrCIDRs(t *testing.T) {
	policy := MakeIsolationPolicy(IsolationPolicyParams{
		ProjectName: "solo",
		Namespace:   "project-solo",
		Network: NetworkParams{
			DNSNamespace: "dns-system",
			DNSPodLabels: map[string]string{"app": "coredns"},
		},
	})

	assertYAMLEqual(t, "no-infra", policy, `
apiVersion: networking.k8s.io/v1
kind: NetworkPolicy
metadata:
  name: project-solo-isolation
  namespace: project-solo
  labels:
    crucible.dev/managed-by: crucible-operator
    crucible.dev/project: solo
spec:
  podSelector: {}
  policyTypes:
    - Ingress
    - Egress
  ingress:
    - from:
        - podSelector: {}
  egress:
    - to:
        - podSelector: {}
    - to:
        - namespaceSelector:
            matchLabels:
              kubernetes.io/metadata.name: dns-system
          podSelector:
            matchLabels:
              app: coredns
      ports:
        - protocol: UDP
          port: 53
        - protocol: TCP
          port: 53
    - to:
        - ipBlock:
            cidr: 0.0.0.0/0
`)
}

func TestIsolationPolicyName_Truncation(t *testing.T) {
	name := IsolationPolicyName(strings.Repeat("p", 300))
	if len(name) > MaxResourceNameLength {
		t.Errorf("policy name exceeds %d chars: %d", MaxResourceNameLength, len(name))
	}
}

func TestIsolationPolicyHandler_CreateThenUpdate(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).Build()
	h := NewIsolationPolicyHandler(c)
	pc := newProjectContext("proj-x")
	pc.Network = NetworkParams{InfraNamespaces: []string{"workspace-hub"}}

	state, err := h.GetCurrentState(context.Background(), pc)
	if err != nil {
		t.Fatalf("GetCurrentState() unexpected error: %v", err)
	}
	if state != nil {
		t.Fatal("expected no policy before Create")
	}
	if err := h.Create(context.Background(), pc); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	// Adding an infrastructure namespace must flow through Update.
	pc.Network.InfraNamespaces = []string{"workspace-hub", "backend"}
	state, err = h.GetCurrentState(context.Background(), pc)
	if err != nil {
		t.Fatalf("GetCurrentState() unexpected error: %v", err)
	}
	if state == nil {
		t.Fatal("expected policy to exist after Create")
	}
	if err := h.Update(context.Background(), pc, state); err != nil {
		t.Fatalf("Update() unexpected error: %v", err)
	}

	policy := &unstructured.Unstructured{}
	policy.SetGroupVersionKind(networkPolicyGVK)
	if err := c.Get(context.Background(), client.ObjectKey{Namespace: "project-proj-x", Name: "project-proj-x-isolation"}, policy); err != nil {
		t.Fatalf("expected policy to exist: %v", err)
	}
	ingress, found, err := unstructured.NestedSlice(policy.Object, "spec", "ingress")
	if err != nil || !found {
		t.Fatalf("expected spec.ingress in policy: found=%v err=%v", found, err)
	}
	// Intra-namespace rule plus one rule per infrastructure namespace.
	if len(ingress) != 3 {
		t.Errorf("expected 3 ingress rules after update, got %d", len(ingress))
	}
}
