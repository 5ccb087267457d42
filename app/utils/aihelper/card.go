package aihelper

import (
	"image/color"

	"live-butler/app/errs"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

const (
	cardWidth  = 800
	cardHeight = 600
	// 评论图片的最长边限制，超过就等比缩小
	maxImageSide = 1600
)

// RenderGoodnightCard 在漫画生成不可用时本地绘制一张晚安卡片
func RenderGoodnightCard(text, outPath string) error {
	dc := gg.NewContext(cardWidth, cardHeight)

	// 深夜配色的渐变背景
	for y := 0; y < cardHeight; y++ {
		t := float64(y) / float64(cardHeight)
		dc.SetColor(color.RGBA{
			R: uint8(20 + 30*t),
			G: uint8(25 + 20*t),
			B: uint8(60 + 60*t),
			A: 255,
		})
		dc.DrawLine(0, float64(y), cardWidth, float64(y))
		dc.Stroke()
	}

	// 月亮
	dc.SetRGB(0.96, 0.93, 0.75)
	dc.DrawCircle(cardWidth-120, 110, 50)
	dc.Fill()

	// 尽力加载中文字体，失败时退回 gg 的内置字体
	for _, fontPath := range []string{
		"data/fonts/goodnight.ttf",
		"/usr/share/fonts/truetype/wqy/wqy-microhei.ttc",
		"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
	} {
		if err := dc.LoadFontFace(fontPath, 32); err == nil {
			break
		}
	}

	// 晚安文案居中换行绘制
	dc.SetRGB(0.95, 0.95, 0.98)
	dc.DrawStringWrapped(text, cardWidth/2, cardHeight/2, 0.5, 0.5, cardWidth-160, 1.8, gg.AlignCenter)

	if err := dc.SavePNG(outPath); err != nil {
		return errs.E(errs.KindInternal, "保存晚安卡片失败", err)
	}
	return nil
}

// NormalizeImage 将超出上传限制的图片等比缩小后原地覆盖
func NormalizeImage(path string) error {
	img, err := imaging.Open(path)
	if err != nil {
		return errs.E(errs.KindInternal, "打开图片失败", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxImageSide && bounds.Dy() <= maxImageSide {
		return nil
	}

	resized := imaging.Fit(img, maxImageSide, maxImageSide, imaging.Lanczos)
	if err := imaging.Save(resized, path); err != nil {
		return errs.E(errs.KindInternal, "保存压缩图片失败", err)
	}
	return nil
}
