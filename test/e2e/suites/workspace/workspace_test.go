// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive
	. "github.com/onsi/gomega"    //nolint:revive

	"github.com/crucible-dev/crucible/test/e2e/framework"
)

var _ = Describe("Workspace Provisioning", Ordered, func() {
	SetDefaultEventuallyTimeout(framework.DefaultTimeout)
	SetDefaultEventuallyPollingInterval(framework.DefaultPolling)

	BeforeAll(func() {
		By("applying the test project")
		_, err := framework.KubectlApplyStdin(kubeContext, projectYAML())
		Expect(err).NotTo(HaveOccurred())

		DeferCleanup(func() {
			_, _ = framework.KubectlDeleteStdin(kubeContext, vdiInstanceYAML())
			_, _ = framework.KubectlDeleteStdin(kubeContext, projectYAML())
		})
	})

	Context("Project materialization", func() {
		It("should create the project namespace with the managed-by label", func() {
			Eventually(func(g Gomega) {
				output, err := framework.Kubectl(kubeContext, "get", "namespace", projectNamespace,
					"-o", "jsonpath={.metadata.labels.crucible\\.dev/managed-by}")
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(output).To(Equal("crucible-operator"))
			}).Should(Succeed())
		})

		It("should create the resource quota from the project spec", func() {
			Eventually(func(g Gomega) {
				framework.AssertJsonpathEquals(g, kubeContext, projectNamespace,
					"resourcequota", projectName+"-quota",
					"{.spec.hard.requests\\.cpu}", "2")
			}).Should(Succeed())
		})

		It("should create the container limit range", func() {
			Eventually(func(g Gomega) {
				framework.AssertJsonpathEquals(g, kubeContext, projectNamespace,
					"limitrange", projectName+"-limits",
					"{.spec.limits[0].type}", "Container")
			}).Should(Succeed())
		})

		It("should grant hub access via the spawner role binding", func() {
			Eventually(func(g Gomega) {
				framework.AssertResourceExists(g, kubeContext, projectNamespace,
					"rolebinding", "workspace-hub-spawner")
			}).Should(Succeed())
		})

		It("should isolate the namespace with a network policy", func() {
			Eventually(func(g Gomega) {
				framework.AssertResourceExists(g, kubeContext, projectNamespace,
					"networkpolicy", "project-"+projectName+"-isolation")
			}).Should(Succeed())
		})

		It("should record the namespace in the project status", func() {
			Eventually(func(g Gomega) {
				framework.AssertJsonpathEquals(g, kubeContext, operatorNamespace,
					"project", projectName,
					"{.status.namespace}", projectNamespace)
			}).Should(Succeed())
		})
	})

	Context("VDI instance", func() {
		BeforeAll(func() {
			By("applying the workspace instance")
			_, err := framework.KubectlApplyStdin(kubeContext, vdiInstanceYAML())
			Expect(err).NotTo(HaveOccurred())
		})

		It("should create the workspace pod", func() {
			Eventually(func(g Gomega) {
				framework.AssertResourceExists(g, kubeContext, projectNamespace,
					"pod", "vdi-"+instanceName)
			}).Should(Succeed())
		})

		It("should create the workspace service on the rdp port", func() {
			Eventually(func(g Gomega) {
				framework.AssertJsonpathEquals(g, kubeContext, projectNamespace,
					"service", "vdi-"+testUser+"-"+projectName,
					"{.spec.ports[0].port}", "3389")
			}).Should(Succeed())
		})

		It("should create the home volume claim", func() {
			Eventually(func(g Gomega) {
				framework.AssertJsonpathEquals(g, kubeContext, projectNamespace,
					"persistentvolumeclaim", "vdi-"+testUser+"-"+projectName,
					"{.spec.resources.requests.storage}", "1Gi")
			}).Should(Succeed())
		})

		It("should report the workspace as running with a session password", func() {
			Eventually(func(g Gomega) {
				framework.AssertJsonpathEquals(g, kubeContext, projectNamespace,
					"vdiinstance", instanceName,
					"{.status.phase}", "Running")
				framework.AssertJsonpathNonEmpty(g, kubeContext, projectNamespace,
					"vdiinstance", instanceName,
					"{.status.sessionPassword}")
			}).Should(Succeed())
		})
	})

	Context("Workspace teardown", func() {
		BeforeAll(func() {
			By("deleting the workspace instance")
			_, err := framework.KubectlDeleteStdin(kubeContext, vdiInstanceYAML())
			Expect(err).NotTo(HaveOccurred())
		})

		It("should remove the workspace pod", func() {
			Eventually(func(g Gomega) {
				framework.AssertResourceAbsent(g, kubeContext, projectNamespace,
					"pod", "vdi-"+instanceName)
			}).Should(Succeed())
		})

		It("should retain the home volume claim", func() {
			framework.AssertResourceExists(Default, kubeContext, projectNamespace,
				"persistentvolumeclaim", "vdi-"+testUser+"-"+projectName)
		})
	})
})
