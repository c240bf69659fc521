// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package githostclient

import (
	"context"

	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
)

// listClientsForSecret maps a Secret event to the GitHostClients whose admin
// or OIDC reference points at it, so credentials created after the client are
// picked up without waiting for the periodic resync.
func (r *Reconciler) listClientsForSecret(ctx context.Context, obj client.Object) []ctrl.Request {
	clientList := &identityv1alpha1.GitHostClientList{}
	if err := r.List(ctx, clientList); err != nil {
		return nil
	}

	var requests []ctrl.Request
	for _, ghc := range clientList.Items {
		if !referencesSecret(&ghc, obj.GetNamespace(), obj.GetName()) {
			continue
		}
		requests = append(requests, ctrl.Request{
			NamespacedName: types.NamespacedName{Namespace: ghc.Namespace, Name: ghc.Name},
		})
	}
	return requests
}

func referencesSecret(ghc *identityv1alpha1.GitHostClient, namespace, name string) bool {
	refs := []struct{ namespace, name string }{
		{ghc.Spec.AdminSecretRef.Namespace, ghc.Spec.AdminSecretRef.Name},
		{ghc.Spec.OIDCSecretRef.Namespace, ghc.Spec.OIDCSecretRef.Name},
	}
	for _, ref := range refs {
		refNamespace := ref.namespace
		if refNamespace == "" {
			refNamespace = ghc.Namespace
		}
		if ref.name == name && refNamespace == namespace {
			return true
		}
	}
	return false
}
