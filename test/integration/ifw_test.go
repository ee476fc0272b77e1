//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/controller"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/ifw"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/infra"
	"github.com/eliteGoblin/focusd/comp_ctl/test/fixtures"
)

func component(pkg, name string) domain.ComponentDescriptor {
	return domain.ComponentDescriptor{PackageName: pkg, Name: name}
}

var _ = Describe("Intent Firewall", func() {
	var (
		ctx       context.Context
		logger    *zap.Logger
		tmpDir    string
		ruleDir   string
		inspector *fixtures.FakeInspector
		storage   *infra.IfwRuleStorage
		ifwCtl    *controller.IfwController
	)

	ruleFile := func(pkg string) string {
		return filepath.Join(ruleDir, pkg+".xml")
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "compctl-integration-*")
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
		logger = zap.NewNop()
		ruleDir = filepath.Join(tmpDir, "ifw")
		inspector = fixtures.NewFakeInspector().AddPackage(domain.PackageComponents{
			PackageName: "com.example",
			Activities:  []string{".MainActivity"},
			Services:    []string{"com.example.sync.SyncService"},
			Receivers:   []string{".BootReceiver"},
			Providers:   []string{".data.Provider"},
		})
		storage = infra.NewIfwRuleStorageWithDir(ruleDir, logger)
		firewall := ifw.NewIntentFirewall(storage, ifw.NewPackageTypeResolver(inspector, logger), logger)
		ifwCtl = controller.NewIfwController(firewall, logger)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Context("when disabling a single activity", func() {
		It("writes a blocking activity filter and reads it back", func() {
			ok, err := ifwCtl.Disable(ctx, component("com.example", ".MainActivity"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			data, err := os.ReadFile(ruleFile("com.example"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`<activity block="true" log="false">`))
			Expect(string(data)).To(ContainSubstring(`<component-filter name="com.example/.MainActivity"`))

			enabled, err := ifwCtl.CheckComponentEnableState(ctx, "com.example", ".MainActivity")
			Expect(err).NotTo(HaveOccurred())
			Expect(enabled).To(BeFalse())

			enabled, err = ifwCtl.CheckComponentEnableState(ctx, "com.example", "com.example.MainActivity")
			Expect(err).NotTo(HaveOccurred())
			Expect(enabled).To(BeFalse(), "short and full names are the same component")
		})

		It("removes the rule file once the last filter is enabled again", func() {
			_, err := ifwCtl.Disable(ctx, component("com.example", ".MainActivity"))
			Expect(err).NotTo(HaveOccurred())

			ok, err := ifwCtl.Enable(ctx, component("com.example", ".MainActivity"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			enabled, err := ifwCtl.CheckComponentEnableState(ctx, "com.example", ".MainActivity")
			Expect(err).NotTo(HaveOccurred())
			Expect(enabled).To(BeTrue())
			Expect(ruleFile("com.example")).NotTo(BeAnExistingFile())
		})
	})

	Context("when disabling in batch", func() {
		It("skips providers and reports every other success", func() {
			var succeeded []string
			count, err := ifwCtl.BatchDisable(ctx, []domain.ComponentDescriptor{
				component("com.example", ".MainActivity"),
				component("com.example", "com.example.sync.SyncService"),
				component("com.example", ".BootReceiver"),
				component("com.example", ".data.Provider"),
			}, func(c domain.ComponentDescriptor) {
				succeeded = append(succeeded, c.Name)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(3))
			Expect(succeeded).To(ConsistOf(".MainActivity", "com.example.sync.SyncService", ".BootReceiver"))

			data, err := os.ReadFile(ruleFile("com.example"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("<service"))
			Expect(string(data)).To(ContainSubstring("<broadcast"))
			Expect(string(data)).NotTo(ContainSubstring("Provider"))
		})
	})

	Context("when combined with a root backend", func() {
		var (
			executor *fixtures.FakeExecutor
			combined *controller.CombinedController
		)

		BeforeEach(func() {
			executor = fixtures.NewFakeExecutor().
				OnPrefix("pm disable --user 0 com.example/", domain.CommandResult{
					Out: []string{"Component {com.example/com.example.MainActivity} new state: disabled"},
				})
			root := controller.NewRootController(executor, inspector, 0, logger)
			combined = controller.NewCombinedController(ifwCtl, root, logger)
		})

		It("writes both layers and reports each outcome", func() {
			outcomes, err := combined.ApplyEach(ctx, []domain.ComponentDescriptor{
				component("com.example", ".MainActivity"),
				component("com.example", ".data.Provider"),
			}, domain.StateDisabled)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcomes).To(HaveLen(2))
			Expect(outcomes[0].Outcome).To(Equal(controller.BothSucceeded))
			Expect(outcomes[1].Outcome).To(Equal(controller.BackendOnly))

			Expect(executor.Calls()).To(ContainElement("pm disable --user 0 com.example/.MainActivity"))
			Expect(ruleFile("com.example")).To(BeAnExistingFile())
		})

		It("reads enabled while either layer still allows the component", func() {
			_, err := ifwCtl.Disable(ctx, component("com.example", ".MainActivity"))
			Expect(err).NotTo(HaveOccurred())

			enabled, err := combined.CheckComponentEnableState(ctx, "com.example", ".MainActivity")
			Expect(err).NotTo(HaveOccurred())
			Expect(enabled).To(BeTrue())

			inspector.SetEnabled("com.example", ".MainActivity", false)
			enabled, err = combined.CheckComponentEnableState(ctx, "com.example", ".MainActivity")
			Expect(err).NotTo(HaveOccurred())
			Expect(enabled).To(BeFalse())
		})
	})
})
