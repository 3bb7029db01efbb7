package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	_ "image/gif" // 站点偶尔返回 gif 占位图
	"image/jpeg"
	_ "image/png"
)

// NormalizeActorJPEG 把演员头像统一成 JPEG（写入 .actors/<Name>.jpg）。
//
// 规则：
//   - 输入允许 JPEG/PNG/GIF
//   - 横图（宽 > 高）居中裁成 2:3 竖图；竖图和方图保持原样
//   - 输出固定为 JPEG，质量 90
func NormalizeActorJPEG(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, errors.New("头像为空")
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	rect := b
	if b.Dx() > b.Dy() {
		w := b.Dy() * 2 / 3
		if w < 1 {
			w = 1
		}
		x0 := b.Min.X + (b.Dx()-w)/2
		rect = image.Rect(x0, b.Min.Y, x0+w, b.Max.Y)
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
