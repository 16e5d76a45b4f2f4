package downloader_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/habforecast/eo-fetcher/catalog"
	"github.com/habforecast/eo-fetcher/common"
	"github.com/habforecast/eo-fetcher/downloader"
	"github.com/habforecast/eo-fetcher/interface/provider"
	"github.com/habforecast/eo-fetcher/interface/session"
	"github.com/habforecast/eo-fetcher/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var monthEnds = []string{"0131", "0229", "0331", "0430", "0531", "0630", "0731", "0831", "0930", "1031", "1130", "1231"}

func monthlyPath(month int) string {
	begin := "2024" + monthEnds[month][:2] + "01"
	end := "2024" + monthEnds[month]
	return "S3B/2024/CONUS_MO/S3B_OLCI_EFRNT." + begin + "_" + end + ".L3m.MO.ILW_CONUS.V5.all.CONUS.300m.nc"
}

func remotePath(month int) string {
	return "/getfile/" + filepath.Base(monthlyPath(month))
}

var _ = Describe("Downloader", func() {
	var (
		ctx    context.Context
		srv    *archiveServer
		outDir string
		sess   *session.Session
		prov   provider.Provider
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		srv = newArchiveServer()
		outDir, err = os.MkdirTemp("", "downloader")
		Expect(err).NotTo(HaveOccurred())
		sess, err = session.New(ctx, session.Options{Retries: 1, RetryDelay: time.Millisecond})
		Expect(err).NotTo(HaveOccurred())
		prov = provider.NewOceanColorProvider(sess.Client(), "test")
	})

	AfterEach(func() {
		srv.Close()
		os.RemoveAll(outDir)
	})

	Describe("monthly batch", func() {
		var (
			inv      catalog.MonthlyInventory
			opts     downloader.Options
			contents map[int][]byte
		)

		BeforeEach(func() {
			inv = catalog.MonthlyInventory{
				BaseURL:   srv.URL + "/getfile/",
				Years:     []int{2024},
				Satellite: "S3B",
				Region:    "CONUS",
				Months:    catalog.AllMonths,
			}
			// November and December are not published yet
			contents = map[int][]byte{}
			for month := 0; month < 10; month++ {
				contents[month] = srv.addFile(remotePath(month), 5000+10*month)
			}
			opts = downloader.DefaultOptions(common.DatasetMonthly)
			opts.RetryDelay = time.Millisecond
			opts.OutDir = outDir
		})

		It("should fetch the monthly files of 2024 and skip the absent ones", func() {
			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Count(common.StatusDONE)).To(Equal(10))
			Expect(report.Count(common.StatusABSENT)).To(Equal(2))

			results := report.Results()
			Expect(results).To(HaveLen(12))
			for month, res := range results {
				Expect(res.File).To(Equal(filepath.Join(outDir, monthlyPath(month))))
				Expect(res.URL).To(Equal(srv.URL + remotePath(month)))
			}

			attempted := report.Attempted()
			Expect(attempted).To(HaveLen(10))
			for _, a := range attempted {
				Expect(a.Mode).To(Equal(downloader.TransferFull))
				Expect(a.Status).To(Equal(common.StatusDONE))
				Expect(a.URL).NotTo(Equal(srv.URL + remotePath(10)))
				Expect(a.URL).NotTo(Equal(srv.URL + remotePath(11)))
			}

			data, err := os.ReadFile(filepath.Join(outDir, monthlyPath(1)))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(contents[1]))
			_, err = os.Stat(filepath.Join(outDir, monthlyPath(10)))
			Expect(os.IsNotExist(err)).To(BeTrue())
			Expect(srv.transfers(remotePath(10))).To(BeEmpty())
		})

		It("should not download anything the second time", func() {
			_, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			srv.reset()

			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Count(common.StatusEXISTING)).To(Equal(10))
			Expect(report.Count(common.StatusABSENT)).To(Equal(2))
			Expect(report.Attempted()).To(BeEmpty())
			Expect(srv.transfers("")).To(BeEmpty())
		})

		It("should resume a partial file with range requests only", func() {
			partial := filepath.Join(outDir, monthlyPath(0))
			Expect(os.MkdirAll(filepath.Dir(partial), 0755)).To(Succeed())
			Expect(os.WriteFile(partial, contents[0][:1000], 0644)).To(Succeed())

			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results()[0].Status).To(Equal(common.StatusRESUMED))
			Expect(report.Attempted()[0].Mode).To(Equal(downloader.TransferResume))

			ranges := srv.transfers(remotePath(0))
			Expect(ranges).NotTo(BeEmpty())
			for _, r := range ranges {
				Expect(r).To(Equal("bytes=1000-"))
			}
			data, err := os.ReadFile(partial)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(contents[0]))
		})

		It("should never overwrite a local file larger than the remote one", func() {
			local := filepath.Join(outDir, monthlyPath(1))
			Expect(os.MkdirAll(filepath.Dir(local), 0755)).To(Succeed())
			larger := append(append([]byte{}, contents[1]...), []byte("0123456789")...)
			Expect(os.WriteFile(local, larger, 0644)).To(Succeed())

			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			res := report.Results()[1]
			Expect(res.Status).To(Equal(common.StatusFAILED))
			Expect(res.Message).To(ContainSubstring("Inspect or delete"))
			Expect(report.Count(common.StatusDONE)).To(Equal(9))
			Expect(srv.transfers(remotePath(1))).To(BeEmpty())

			data, err := os.ReadFile(local)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(larger))
		})

		It("should retry temporary failures", func() {
			srv.setFailures(remotePath(0), 2)

			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results()[0].Status).To(Equal(common.StatusDONE))
			Expect(report.Attempted()[0].Tries).To(Equal(3))
		})

		It("should resume a transfer dropped by the remote", func() {
			srv.setDrops(remotePath(0), 1)

			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results()[0].Status).To(Equal(common.StatusRESUMED))
			attempt := report.Attempted()[0]
			Expect(attempt.Tries).To(Equal(2))
			Expect(attempt.Mode).To(Equal(downloader.TransferResume))

			ranges := srv.transfers(remotePath(0))
			Expect(ranges).To(HaveLen(2))
			Expect(ranges[0]).To(BeEmpty())
			Expect(ranges[1]).To(HavePrefix("bytes="))
			Expect(ranges[1]).NotTo(Equal("bytes=0-"))

			data, err := os.ReadFile(filepath.Join(outDir, monthlyPath(0)))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(contents[0]))
		})

		It("should restore the missing files from the archive", func() {
			archiveDir, err := os.MkdirTemp("", "archive")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(archiveDir)
			archived := filepath.Join(archiveDir, monthlyPath(3))
			Expect(os.MkdirAll(filepath.Dir(archived), 0755)).To(Succeed())
			Expect(os.WriteFile(archived, contents[3], 0644)).To(Succeed())
			// partial copy in the archive: completed from the remote
			archived = filepath.Join(archiveDir, monthlyPath(4))
			Expect(os.MkdirAll(filepath.Dir(archived), 0755)).To(Succeed())
			Expect(os.WriteFile(archived, contents[4][:2000], 0644)).To(Succeed())

			opts.Mirror, err = service.NewArchive(ctx, archiveDir)
			Expect(err).NotTo(HaveOccurred())
			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results()[3].Status).To(Equal(common.StatusEXISTING))
			Expect(report.Results()[4].Status).To(Equal(common.StatusRESUMED))
			Expect(report.Count(common.StatusDONE)).To(Equal(8))
			Expect(srv.transfers(remotePath(3))).To(BeEmpty())
			Expect(srv.transfers(remotePath(4))).To(Equal([]string{"bytes=2000-"}))

			data, err := os.ReadFile(filepath.Join(outDir, monthlyPath(4)))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(contents[4]))
		})

		It("should skip a target when the retries are exhausted", func() {
			srv.setFailures(remotePath(0), 100)

			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results()[0].Status).To(Equal(common.StatusFAILED))
			attempt := report.Attempted()[0]
			Expect(attempt.Status).To(Equal(common.StatusFAILED))
			Expect(attempt.Tries).To(Equal(opts.Retries + 1))
			Expect(report.Count(common.StatusDONE)).To(Equal(9))
		})

		It("should skip existing files without any request", func() {
			local := filepath.Join(outDir, monthlyPath(0))
			Expect(os.MkdirAll(filepath.Dir(local), 0755)).To(Succeed())
			Expect(os.WriteFile(local, []byte("partial"), 0644)).To(Succeed())
			opts.SkipExisting = true

			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results()[0].Status).To(Equal(common.StatusEXISTING))
			Expect(srv.count(remotePath(0))).To(Equal(0))
		})

		It("should publish one event per target", func() {
			publisher := &MokePublisher{}
			report, err := downloader.NewExecutor(sess, prov, opts, downloader.NewEventListener(publisher)).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.messages).To(HaveLen(12))

			res := common.Result{}
			Expect(json.Unmarshal(publisher.messages[0], &res)).To(Succeed())
			Expect(res.RunID).To(Equal(report.RunID()))
			Expect(res.Dataset).To(Equal(common.DatasetMonthly))
			Expect(res.Status).To(Equal(common.StatusDONE))
			Expect(json.Unmarshal(publisher.messages[11], &res)).To(Succeed())
			Expect(res.Status).To(Equal(common.StatusABSENT))
		})

		It("should archive the transferred files", func() {
			archiveDir, err := os.MkdirTemp("", "archive")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(archiveDir)
			archive, err := service.NewArchive(ctx, archiveDir)
			Expect(err).NotTo(HaveOccurred())
			listener := downloader.NewArchiveListener(archive, outDir, true)

			_, err = downloader.NewExecutor(sess, prov, opts, listener).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(listener.Files()).To(HaveLen(10))
			data, err := os.ReadFile(filepath.Join(archiveDir, monthlyPath(2)))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(contents[2]))
		})

		It("should stop when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := downloader.NewExecutor(sess, prov, opts).Run(cctx, inv)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(srv.transfers("")).To(BeEmpty())
		})
	})

	Describe("daymet batch", func() {
		var (
			inv  catalog.DaymetInventory
			opts downloader.Options
		)

		BeforeEach(func() {
			inv = catalog.DaymetInventory{
				BaseURL:   srv.URL + "/daymet/",
				Years:     []int{2023},
				Variables: []string{"tmin", "tmax", "prcp"},
			}
			srv.addFile("/daymet/daymet_v4_daily_na_tmin_2023.nc", 3000)
			srv.addFile("/daymet/daymet_v4_daily_na_prcp_2023.nc", 3000)
			opts = downloader.DefaultOptions(common.DatasetDaymet)
			opts.OutDir = outDir
		})

		It("should abort the batch at the first failure", func() {
			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("daymet_v4_daily_na_tmax_2023.nc"))

			results := report.Results()
			Expect(results).To(HaveLen(2))
			Expect(results[0].Status).To(Equal(common.StatusDONE))
			Expect(results[1].Status).To(Equal(common.StatusFAILED))
			Expect(srv.count("/daymet/daymet_v4_daily_na_prcp_2023.nc")).To(Equal(0))
			_, err = os.Stat(filepath.Join(outDir, "daymet_v4_daily_na_prcp_2023.nc"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("should resume a partial file without retrying", func() {
			content := srv.addFile("/daymet/daymet_v4_daily_na_tmax_2023.nc", 3000)
			partial := filepath.Join(outDir, "daymet_v4_daily_na_tmax_2023.nc")
			Expect(os.WriteFile(partial, content[:1200], 0644)).To(Succeed())

			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			Expect(err).NotTo(HaveOccurred())
			results := report.Results()
			Expect(results).To(HaveLen(3))
			Expect(results[1].Status).To(Equal(common.StatusRESUMED))
			Expect(srv.transfers("/daymet/daymet_v4_daily_na_tmax_2023.nc")).To(Equal([]string{"bytes=1200-"}))

			for _, a := range report.Attempted() {
				Expect(a.Tries).To(Equal(1))
			}
			data, err := os.ReadFile(partial)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(content))
		})

		It("should abort when the application is not authorized", func() {
			inv.BaseURL = srv.URL + "/denied/"
			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, inv)
			var authErr *service.AuthorizationError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(authErr.Remediation).To(Equal(srv.URL + "/denied/daymet_v4_daily_na_tmin_2023.nc"))
			Expect(report.Results()).To(BeEmpty())
			Expect(srv.transfers("")).To(BeEmpty())
		})

		It("should reject two urls stored under the same filename", func() {
			srv.addFile("/mirror/daymet_v4_daily_na_tmin_2023.nc", 3000)
			first := srv.URL + "/daymet/daymet_v4_daily_na_tmin_2023.nc"
			list := catalog.URLListInventory{URLs: []string{
				first,
				first,
				srv.URL + "/mirror/daymet_v4_daily_na_tmin_2023.nc",
			}}

			report, err := downloader.NewExecutor(sess, prov, opts).Run(ctx, list)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("collision"))
			results := report.Results()
			Expect(results).To(HaveLen(2))
			Expect(results[0].Status).To(Equal(common.StatusDONE))
			Expect(results[1].Status).To(Equal(common.StatusFAILED))
			Expect(srv.count("/mirror/daymet_v4_daily_na_tmin_2023.nc")).To(Equal(0))
		})
	})
})
