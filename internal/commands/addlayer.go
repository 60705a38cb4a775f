package commands

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/bwmarrin/discordgo"
	_ "golang.org/x/image/webp"

	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/utils"
)

// maxAttachmentBytes 添付画像の上限
const maxAttachmentBytes = 10 << 20

// AddLayerCommand 添付画像をオーバーレイとして登録
type AddLayerCommand struct {
	engine Engine
	client *http.Client
}

func NewAddLayerCommand(engine Engine) *AddLayerCommand {
	return &AddLayerCommand{engine: engine, client: &http.Client{Timeout: commandTimeout}}
}

func (c *AddLayerCommand) Name() string {
	return "addlayer"
}

func (c *AddLayerCommand) Description() string {
	return "添付画像を指定座標にオーバーレイとして登録します"
}

// layerKeyFromFilename 拡張子を除いたファイル名
func layerKeyFromFilename(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

func (c *AddLayerCommand) download(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download: status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", overlay.ErrInvalidInput, err)
	}
	return img, nil
}

func (c *AddLayerCommand) add(att *discordgo.MessageAttachment, coords, key string) (string, error) {
	if att == nil {
		return "", fmt.Errorf("%w: image attachment required", overlay.ErrInvalidInput)
	}
	if att.Size > maxAttachmentBytes {
		return "", fmt.Errorf("%w: attachment too large", overlay.ErrInvalidInput)
	}
	coord, err := utils.ParseHyphenCoords(coords)
	if err != nil {
		return "", fmt.Errorf("%w: %v", overlay.ErrInvalidInput, err)
	}
	if key == "" {
		key = layerKeyFromFilename(att.Filename)
	}

	ctx, cancel := newCommandContext()
	defer cancel()
	img, err := c.download(ctx, att.URL)
	if err != nil {
		return "", err
	}
	layer, err := c.engine.AddLayer(ctx, key, img, overlay.AnchorFromCoordinate(coord))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ `%s` を `%s` に登録しました (%dx%d, タイル %d 枚)\n%s",
		layer.Key, utils.FormatHyphenCoords(coord), layer.Width, layer.Height, len(layer.Tiles()),
		utils.LayerLink(*coord, layer.Width, layer.Height)), nil
}

func addLayerErrorMessage(err error) string {
	if errors.Is(err, overlay.ErrInvalidInput) {
		return "❌ 使用方法: 画像を添付して `addlayer <TlX-TlY-PxX-PxY> [名前]`\n" + err.Error()
	}
	return "❌ 登録に失敗しました: " + err.Error()
}

func (c *AddLayerCommand) ExecuteText(s *discordgo.Session, m *discordgo.MessageCreate, args []string) error {
	var att *discordgo.MessageAttachment
	if len(m.Attachments) > 0 {
		att = m.Attachments[0]
	}
	var coords, key string
	if len(args) > 0 {
		coords = args[0]
	}
	if len(args) > 1 {
		key = args[1]
	}
	content, err := c.add(att, coords, key)
	if err != nil {
		content = addLayerErrorMessage(err)
	}
	_, err = s.ChannelMessageSend(m.ChannelID, content)
	return err
}

func (c *AddLayerCommand) ExecuteSlash(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	data := i.ApplicationCommandData()
	opts := optionMap(i)
	var att *discordgo.MessageAttachment
	if opt, ok := opts["image"]; ok && data.Resolved != nil {
		if id, ok := opt.Value.(string); ok {
			att = data.Resolved.Attachments[id]
		}
	}
	var coords, key string
	if opt, ok := opts["coords"]; ok {
		coords = opt.StringValue()
	}
	if opt, ok := opts["name"]; ok {
		key = opt.StringValue()
	}

	if err := respondDeferred(s, i); err != nil {
		return err
	}
	content, err := c.add(att, coords, key)
	if err != nil {
		content = addLayerErrorMessage(err)
	}
	return followup(s, i, &discordgo.WebhookParams{Content: content})
}

func (c *AddLayerCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionAttachment,
				Name:        "image",
				Description: "オーバーレイ画像",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "coords",
				Description: "左上の座標 (例: 1818-806-989-358)",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "name",
				Description: "レイヤー名（省略時はファイル名）",
			},
		},
	}
}
