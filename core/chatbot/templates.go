package chatbot

import (
	"fmt"
	"strings"

	"github.com/kilianp07/kurir/core/model"
)

// Brand is shown in the menu and in the completion message.
const Brand = "KURIRTA"

func serviceList(services []Service, format string) string {
	lines := make([]string, 0, len(services))
	for _, s := range services {
		lines = append(lines, fmt.Sprintf(format, s.Code, s.Label))
	}
	return strings.Join(lines, "\n")
}

// MenuText explains the order format.
func MenuText(services []Service) string {
	example := "1"
	if len(services) > 0 {
		example = services[0].Code
	}
	return fmt.Sprintf("🚗 *%s - Layanan Kurir*\n\n"+
		"Ketik format berikut untuk order:\n%s\n\n"+
		"Contoh: *%s 085150524668*\n\n"+
		"Kami akan segera menghubungi! 📞",
		Brand, serviceList(services, "*%s [No HP]* = %s"), example)
}

// InvalidServiceText answers an unknown service code.
func InvalidServiceText(services []Service) string {
	return "❌ Layanan tidak valid.\n\n" + serviceList(services, "*%s* = %s")
}

// BadFormatText answers a malformed phone number.
func BadFormatText(services []Service) string {
	codes := make([]string, 0, len(services))
	for _, s := range services {
		codes = append(codes, fmt.Sprintf("*%s 08xxx*", s.Code))
	}
	return "❌ Format salah!\n\nKetik: " + strings.Join(codes, " atau ")
}

// ReplyCooldownText asks the sender to wait before messaging again.
func ReplyCooldownText(remaining int) string {
	return fmt.Sprintf("⏳ Tunggu %d detik lagi sebelum pesan berikutnya ya kak.", remaining)
}

// OrderCooldownText asks the sender to wait before ordering again.
func OrderCooldownText(remaining int) string {
	return fmt.Sprintf("⏳ Tunggu %d detik lagi sebelum order berikutnya ya kak.", remaining)
}

// OrderFailedText apologises for a failed order creation.
const OrderFailedText = "❌ Gagal membuat pesanan. Coba lagi nanti."

// ConfirmationText acknowledges a new order. drv is nil while no driver
// is assigned.
func ConfirmationText(o model.Order, label string, drv *model.Driver) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ *Pesanan Diterima!*\nNo. Order: *%s*\n\n", o.OrderNumber)
	fmt.Fprintf(&b, "Layanan: %s\nNo. HP: *%s*\n\n", label, o.CustomerPhone)
	if drv != nil {
		fmt.Fprintf(&b, "🚗 Driver: *%s*\n📱 HP: %s\n\n", drv.Name, drv.Phone)
		b.WriteString("Driver akan segera menghubungi kakak.\nTerima kasih! 🙏")
		return b.String()
	}
	b.WriteString("⏳ Menunggu driver ditugaskan...\nKami akan kabari segera!\n\n")
	b.WriteString("🚗 Tunggu ya, segera dihubungi!\nTerima kasih! 🙏")
	return b.String()
}

// DriverAssignedText tells the customer who will handle the order.
func DriverAssignedText(drv model.Driver) string {
	return fmt.Sprintf("🚗 *Driver Sudah Ditugaskan!*\n\n👤 Driver: *%s*\n📱 HP: %s\n\n"+
		"Driver akan segera menghubungi kakak.\nTerima kasih! 🙏", drv.Name, drv.Phone)
}

// StatusText returns the customer notice for a status change, or "" when
// the status is not announced.
func StatusText(st model.OrderStatus, reason string) string {
	switch st {
	case model.StatusAccepted:
		return "✅ Driver sudah menerima pesanan kakak dan sedang menuju lokasi!"
	case model.StatusPickedUp:
		return "📦 Pesanan sudah diambil driver."
	case model.StatusOnDelivery:
		return "🏍️ Driver sedang dalam perjalanan ke tujuan."
	case model.StatusCompleted:
		return fmt.Sprintf("🎉 Pesanan selesai! Terima kasih sudah menggunakan %s. 🙏", Brand)
	case model.StatusCancelled:
		head := strings.TrimSpace("❌ Pesanan dibatalkan. " + reason)
		return head + "\nSilakan pesan lagi ya kak!"
	}
	return ""
}
