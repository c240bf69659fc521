// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identityclient

import (
	"context"

	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
)

// listClientsForSecret maps a Secret event to the IdentityClients whose
// secretRef points at it, so a late-created or rotated secret is picked up
// without waiting for the periodic resync.
func (r *Reconciler) listClientsForSecret(ctx context.Context, obj client.Object) []ctrl.Request {
	clientList := &identityv1alpha1.IdentityClientList{}
	if err := r.List(ctx, clientList); err != nil {
		return nil
	}

	var requests []ctrl.Request
	for _, ic := range clientList.Items {
		ref := ic.Spec.SecretRef
		if ref == nil || ref.Name != obj.GetName() {
			continue
		}
		namespace := ref.Namespace
		if namespace == "" {
			namespace = ic.Namespace
		}
		if namespace != obj.GetNamespace() {
			continue
		}
		requests = append(requests, ctrl.Request{
			NamespacedName: types.NamespacedName{Namespace: ic.Namespace, Name: ic.Name},
		})
	}
	return requests
}
