package orders

type Status string

// Order baru langsung Dibayar; belum ada integrasi payment gateway.
// Perubahan status berikutnya (Dikemas, Dikirim, Selesai) di luar layanan ini.
const StatusPaid Status = "Dibayar"

const initialStatus = StatusPaid
