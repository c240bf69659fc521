// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive
	. "github.com/onsi/gomega"    //nolint:revive

	"github.com/crucible-dev/crucible/test/e2e/framework"
)

var _ = Describe("Operator Health", Ordered, func() {
	const operatorNamespace = "crucible-system"

	SetDefaultEventuallyTimeout(framework.DefaultTimeout)
	SetDefaultEventuallyPollingInterval(framework.DefaultPolling)

	Context("Operator", func() {
		It("should have all pods running", func() {
			Eventually(func(g Gomega) {
				framework.AssertAllPodsRunning(g, kubeContext, operatorNamespace)
			}).Should(Succeed())
		})

		It("should report the plugin health check as passing", func() {
			Eventually(func(g Gomega) {
				output, err := framework.KubectlLogs(kubeContext, operatorNamespace,
					"app.kubernetes.io/name=crucible-operator", 200)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(output).NotTo(ContainSubstring("no plugins initialized"),
					"operator logs should not show a failed plugin startup")
			}).Should(Succeed())
		})
	})

	Context("CRDs", func() {
		crds := []string{
			"users.identity.crucible.dev",
			"groups.identity.crucible.dev",
			"identityclients.identity.crucible.dev",
			"githostclients.identity.crucible.dev",
			"projects.workspace.crucible.dev",
			"vdiinstances.workspace.crucible.dev",
		}

		for _, crd := range crds {
			It("should have CRD "+crd, func() {
				_, err := framework.Kubectl(kubeContext, "get", "crd", crd)
				Expect(err).NotTo(HaveOccurred(), "CRD %s should be registered", crd)
			})
		}
	})
})
