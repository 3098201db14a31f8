// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/utils"
	"github.com/cnotch/xlog"
	"github.com/kelindar/rate"
	"github.com/pkg/errors"
)

// level 6.2 的 MaxLumaPs
const defaultMaxLumaPictureSize = 35651584

// Stats 解码统计
type Stats struct {
	NALUnits  int64
	Slices    int64
	Pictures  int64
	Frames    int64
	Skipped   int64 // 跳过的 RASL 及首个 IRAP 之前的图像
	Errors    int64
	Mismatchs int64 // 图像哈希不一致
}

// sliceJob 帧级并行时暂存的片段
type sliceJob struct {
	sc  *SliceContext
	raw []byte
}

// pictureJob 正在接收片段的图像
type pictureJob struct {
	pc     *PictureContext
	slices []sliceJob
	// err 同步重建时第一个片段错误
	err error
}

// Decoder HEVC 解码器，按解码顺序送入 NAL，按输出顺序取出图像。
// 非并发安全，SendNAL/ReceiveFrame/Flush 须在同一 goroutine 中调用。
type Decoder struct {
	opts    Options
	logger  *xlog.Logger
	limiter *rate.Limiter
	backend Backend
	sets    *hevc.ParamSets
	dpb     DPB

	cur       *pictureJob
	prevSlice *hevc.H265SliceHeader
	skipping  bool
	meta      frameMeta

	prevPocTid0 int
	// 下一幅 IRAP 的 NoRaslOutputFlag 为 1（码流开始或 EOS 之后）
	firstPicture bool
	noRaslOutput bool

	out     []outputEntry
	flushed bool

	// 帧级并行
	sem chan struct{}
	wg  sync.WaitGroup

	stats Stats
}

// New 创建解码器
func New(opts Options, logger *xlog.Logger) (*Decoder, error) {
	opts.setDefault()
	if opts.MaxLumaPictureSize <= 0 {
		opts.MaxLumaPictureSize = defaultMaxLumaPictureSize
	}
	if opts.Accelerator != nil && opts.FrameThreads > 1 {
		return nil, errorf(CallerContractViolation, "new", "frame threads are not supported with an accelerator")
	}
	if logger == nil {
		logger = xlog.L()
	}
	d := &Decoder{
		opts:         opts,
		logger:       logger,
		limiter:      rate.New(1, opts.ErrorLogInterval),
		sets:         hevc.NewParamSets(),
		firstPicture: true,
	}
	d.backend = newBackend(&d.opts)
	if opts.FrameThreads > 1 {
		d.sem = make(chan struct{}, opts.FrameThreads)
	}
	return d, nil
}

// SendNAL 送入一个 NAL 单元（可带起始码），可选的 pts 随图像的首个片段保存
func (d *Decoder) SendNAL(nal []byte, pts ...int64) error {
	nal = utils.RemoveNaluSeparator(nal)
	h, err := hevc.ParseNALUnitHeader(nal)
	if err != nil {
		return d.fail(newError(CallerContractViolation, "nal", err))
	}
	if h.Nuh_layer_id > 0 {
		return nil
	}
	atomic.AddInt64(&d.stats.NALUnits, 1)
	d.flushed = false

	nt := h.Nal_unit_type
	switch {
	case hevc.IsVcl(nt):
		return d.decodeSlice(nal, pts)
	case nt == hevc.NalVps || nt == hevc.NalSps || nt == hevc.NalPps:
		if err = d.sets.Put(nal); err != nil {
			return d.fail(newError(FatalStreamError, "parameter_set", err))
		}
	case nt == hevc.NalSeiPrefix || nt == hevc.NalSeiSuffix:
		return d.decodeSEI(nal)
	case nt == hevc.NalAud:
		return d.finishPicture()
	case nt == hevc.NalEosNut || nt == hevc.NalEobNut:
		err = d.finishPicture()
		d.enqueue(d.dpb.flush())
		d.firstPicture = true
		d.prevSlice = nil
		return err
	}
	return nil
}

func (d *Decoder) decodeSEI(nal []byte) error {
	var sei hevc.H265SEI
	if err := sei.Decode(nal); err != nil {
		return d.fail(newError(RecoverableInconsistency, "sei", err))
	}
	if sei.Nal_unit_header.Nal_unit_type == hevc.NalSeiPrefix {
		d.meta.merge(&sei)
		return nil
	}
	if sei.PictureHash != nil && d.cur != nil {
		d.cur.pc.Pic.hash = sei.PictureHash
	}
	return nil
}

func (d *Decoder) decodeSlice(nal []byte, pts []int64) error {
	sh, err := hevc.DecodeSliceHeader(nal, d.sets, d.prevSlice)
	if err != nil {
		return d.fail(newError(FatalStreamError, "slice_header", err))
	}
	d.prevSlice = sh
	atomic.AddInt64(&d.stats.Slices, 1)

	// ferr 前一幅图像的错误，已经报告过
	var ferr error
	if sh.First_slice_segment_in_pic_flag {
		ferr = d.finishPicture()
		if err = d.startPicture(sh, pts); err != nil {
			return d.fail(err)
		}
	}
	if d.skipping {
		return ferr
	}

	job := d.cur
	if job == nil {
		return d.fail(errorf(FatalStreamError, "slice", "slice segment %d without a first slice segment",
			sh.Slice_segment_address))
	}
	pc := job.pc
	if sh.Nal_unit_header.Nal_unit_type != pc.NalType {
		return d.fail(errorf(CallerContractViolation, "slice", "nal_unit_type %d differs from %d within a picture",
			sh.Nal_unit_header.Nal_unit_type, pc.NalType))
	}
	if sh.Params != pc.Params {
		return d.fail(errorf(CallerContractViolation, "slice", "parameter sets changed within a picture"))
	}

	refs, err := buildRefLists(sh, &pc.rps)
	if err != nil {
		return d.fail(err)
	}
	sc := &SliceContext{Pic: pc, Header: sh, Index: pc.slices, refs: refs}
	pc.slices++

	if d.sem != nil {
		// sh.Data 是独立的副本，调用方可以复用 nal
		job.slices = append(job.slices, sliceJob{sc: sc, raw: nal})
		return ferr
	}
	if err = d.backend.DecodeSliceData(sc, nal); err != nil {
		if job.err == nil {
			job.err = err
		}
		return d.fail(err)
	}
	return ferr
}

// startPicture 8.1.3 图像级的解码准备：POC、参考图像集、DPB 输出
func (d *Decoder) startPicture(sh *hevc.H265SliceHeader, pts []int64) error {
	d.skipping = false
	nt := sh.Nal_unit_header.Nal_unit_type
	params := sh.Params
	sps := params.SPS

	if hevc.IsIrap(nt) {
		d.noRaslOutput = hevc.IsIdr(nt) || hevc.IsBla(nt) || d.firstPicture
	} else if d.firstPicture {
		d.skip("picture before the first IRAP")
		return nil
	}
	if hevc.IsRasl(nt) && d.noRaslOutput {
		d.skip("RASL picture of a random access point")
		return nil
	}
	if sps.CodedWidth()*sps.CodedHeight() > d.opts.MaxLumaPictureSize {
		d.skipping = true
		return errorf(ResourceExhaustion, "picture", "picture size %dx%d exceeds the limit",
			sps.CodedWidth(), sps.CodedHeight())
	}

	poc := computePOC(sps, d.prevPocTid0, sh.Slice_pic_order_cnt_lsb, nt, d.noRaslOutput)
	if updatesPrevPocTid0(sh.Nal_unit_header) {
		d.prevPocTid0 = poc
	}

	irapReset := hevc.IsIrap(nt) && d.noRaslOutput
	if irapReset {
		// C.5.2.2
		if !d.firstPicture && (sh.No_output_of_prior_pics_flag || nt == hevc.NalCraNut) {
			d.dpb.discardOutput(nil)
		} else {
			d.enqueue(d.dpb.flush())
		}
		d.dpb.clearRefs()
	}
	d.firstPicture = false

	handle, pic, err := d.allocPicture(sps)
	if err != nil {
		d.skipping = true
		return err
	}
	pic.POC = poc
	if len(pts) > 0 {
		pic.pts, pic.ptsValid = pts[0], true
	}
	pic.pin()
	pc := &PictureContext{
		Pic:     pic,
		Handle:  handle,
		Params:  params,
		NalType: nt,
		POC:     poc,
		opts:    &d.opts,
		logger:  d.logger,
		pinned:  []*Picture{pic},
	}

	rps, missing, err := d.dpb.applyRPS(pic, sh, func(poc int, longTerm bool) (*Picture, error) {
		return d.generateMissing(sps, poc)
	})
	if err != nil {
		pc.release()
		d.skipping = true
		return err
	}
	pc.rps = rps
	for _, list := range [...]int{stCurrBefore, stCurrAfter, ltCurr} {
		for _, ref := range rps[list] {
			ref.pin()
			pc.pinned = append(pc.pinned, ref)
		}
	}

	d.enqueue(d.dpb.bump(sps.MaxNumReorder(), sps.MaxDecPicBuffering()-1, sps.MaxLatencyPictures()))
	pic.output = sh.Pic_output_flag
	pic.shortRef = true
	if pic.output {
		d.dpb.ageOutputs(pic)
	}
	d.enqueue(d.dpb.bump(sps.MaxNumReorder(), math.MaxInt32, sps.MaxLatencyPictures()))

	pic.meta, d.meta = d.meta, frameMeta{}
	d.cur = &pictureJob{pc: pc}
	if err = d.backend.StartPicture(pc); err != nil {
		d.cur = nil
		pic.progress.Fail(err)
		pc.release()
		d.skipping = true
		return err
	}

	if missing > 0 && !irapReset {
		err = errorf(RecoverableInconsistency, "rps", "%d reference pictures of poc %d are missing", missing, poc)
		if d.opts.Strict {
			d.cur = nil
			pic.decodeErr = err
			pic.progress.Fail(err)
			pc.release()
			d.skipping = true
			return escalate(err, true)
		}
		d.report(err)
	}
	return nil
}

// allocPicture 取空闲槽位。没有空闲槽位时先等待进行中的图像释放参考，
// 再把已出队但调用方尚未取走的图像复制成 Frame 以释放槽位。
func (d *Decoder) allocPicture(sps *hevc.H265RawSPS) (Handle, *Picture, error) {
	h, pic, err := d.dpb.alloc(sps)
	if err == nil {
		return h, pic, nil
	}
	if d.sem != nil {
		d.wg.Wait()
		if h, pic, err = d.dpb.alloc(sps); err == nil {
			return h, pic, nil
		}
	}
	if d.materialize() > 0 {
		h, pic, err = d.dpb.alloc(sps)
	}
	return h, pic, err
}

// generateMissing 8.3.3 为缺失的参考生成灰色图像
func (d *Decoder) generateMissing(sps *hevc.H265RawSPS, poc int) (*Picture, error) {
	_, pic, err := d.allocPicture(sps)
	if err != nil {
		return nil, err
	}
	pic.fillGrey()
	pic.POC = poc
	pic.missing = true
	pic.progress.Done()
	return pic, nil
}

func (d *Decoder) skip(reason string) {
	d.skipping = true
	atomic.AddInt64(&d.stats.Skipped, 1)
	if d.logger.LevelEnabled(xlog.DebugLevel) {
		d.logger.Debugf("skip %s.", reason)
	}
}

// finishPicture 当前图像的全部片段已送入
func (d *Decoder) finishPicture() error {
	job := d.cur
	if job == nil {
		return nil
	}
	d.cur = nil
	if d.sem == nil {
		return d.fail(d.reconstruct(job))
	}

	d.sem <- struct{}{}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()
		if err := d.reconstruct(job); err != nil {
			d.report(err)
		}
	}()
	return nil
}

// reconstruct 完成图像的重建、环路滤波与校验，之后释放对参考图像的占用。
// 返回尚未报告过的错误。
func (d *Decoder) reconstruct(job *pictureJob) (err error) {
	pc := job.pc
	pic := pc.Pic
	defer pc.release()

	failed := job.err
	for _, s := range job.slices {
		if serr := d.backend.DecodeSliceData(s.sc, s.raw); serr != nil {
			d.report(serr)
			if failed == nil {
				failed = serr
			}
		}
	}
	if err = d.backend.EndPicture(pc); err != nil && failed == nil {
		failed = err
	}
	atomic.AddInt64(&d.stats.Pictures, 1)

	if failed != nil {
		pic.decodeErr = failed
		pic.progress.Fail(failed)
		return
	}
	if d.opts.VerifyChecksum && pic.hash != nil {
		ok := verifyChecksum(pic, pic.hash)
		pic.checksumOK = &ok
		if !ok {
			atomic.AddInt64(&d.stats.Mismatchs, 1)
			err = errorf(RecoverableInconsistency, "checksum", "picture hash mismatch at poc %d", pic.POC)
			pic.decodeErr = err
		}
	}
	pic.progress.Done()
	return
}

// outputEntry 输出队列中的一项：尚未复制的图像或已复制好的 Frame
type outputEntry struct {
	pic   *Picture
	frame *Frame
}

func (d *Decoder) enqueue(pics []*Picture) {
	for _, pic := range pics {
		d.out = append(d.out, outputEntry{pic: pic})
	}
}

// materialize 按输出顺序把队列中的图像复制成 Frame 并释放其槽位，
// 遇到正在解码的当前图像为止。返回释放的槽位数。
func (d *Decoder) materialize() (n int) {
	for i := range d.out {
		e := &d.out[i]
		if e.frame != nil {
			continue
		}
		if d.cur != nil && d.cur.pc.Pic == e.pic {
			break
		}
		e.frame, e.pic = d.copyOut(e.pic), nil
		n++
	}
	return
}

// copyOut 等待图像重建完成后复制可显示区域，之后槽位可以复用
func (d *Decoder) copyOut(pic *Picture) *Frame {
	if err := pic.progress.Wait(math.MaxInt32); err != nil && pic.decodeErr == nil {
		pic.decodeErr = err
	}
	f := newFrame(pic)
	if !f.HasPTS {
		f.PTS = int64(pic.POC)
	}
	pic.queued = false
	return f
}

// ReceiveFrame 按输出顺序返回下一幅图像。
// 没有可输出的图像时返回 ErrNeedMoreInput，Flush 之后全部取完返回 io.EOF。
func (d *Decoder) ReceiveFrame() (*Frame, error) {
	if len(d.out) == 0 {
		if d.flushed {
			return nil, io.EOF
		}
		return nil, ErrNeedMoreInput
	}
	e := d.out[0]
	if e.frame == nil {
		if d.cur != nil && d.cur.pc.Pic == e.pic {
			return nil, ErrNeedMoreInput
		}
		e.frame = d.copyOut(e.pic)
	}
	d.out[0] = outputEntry{}
	d.out = d.out[1:]

	atomic.AddInt64(&d.stats.Frames, 1)
	return e.frame, nil
}

// Flush 结束当前图像并输出 DPB 中的全部图像
func (d *Decoder) Flush() error {
	err := d.finishPicture()
	d.wg.Wait()
	d.enqueue(d.dpb.flush())
	d.flushed = true
	return err
}

// Reset 丢弃全部图像，保留参数集；之后的码流须从 IRAP 开始
func (d *Decoder) Reset() {
	if job := d.cur; job != nil {
		d.cur = nil
		job.pc.Pic.progress.Fail(errors.New("hevc decoder: reset"))
		job.pc.release()
	}
	d.wg.Wait()
	for _, e := range d.out {
		if e.pic != nil {
			e.pic.queued = false
		}
	}
	d.out = nil
	d.dpb.reset()
	d.prevSlice = nil
	d.skipping = false
	d.meta = frameMeta{}
	d.firstPicture = true
	d.flushed = false
}

// Stats 返回统计信息的快照
func (d *Decoder) Stats() Stats {
	return Stats{
		NALUnits:  atomic.LoadInt64(&d.stats.NALUnits),
		Slices:    atomic.LoadInt64(&d.stats.Slices),
		Pictures:  atomic.LoadInt64(&d.stats.Pictures),
		Frames:    atomic.LoadInt64(&d.stats.Frames),
		Skipped:   atomic.LoadInt64(&d.stats.Skipped),
		Errors:    atomic.LoadInt64(&d.stats.Errors),
		Mismatchs: atomic.LoadInt64(&d.stats.Mismatchs),
	}
}

// Picture 返回句柄对应的图像
func (d *Decoder) Picture(h Handle) (*Picture, error) {
	return d.dpb.Get(h)
}

// fail 记录错误并按严格模式调整类别后返回
func (d *Decoder) fail(err error) error {
	if err == nil {
		return nil
	}
	d.report(err)
	return escalate(err, d.opts.Strict)
}

// report 计数并按间隔限制输出日志
func (d *Decoder) report(err error) {
	atomic.AddInt64(&d.stats.Errors, 1)
	if d.limiter.Limit() {
		return
	}
	if KindOf(err) == RecoverableInconsistency {
		d.logger.Warnf("%v", err)
	} else {
		d.logger.Errorf("%v", err)
	}
}
