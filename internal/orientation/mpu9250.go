package orientation

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// MPU9250Config selects the SPI device and full-scale ranges.
// Ranges are register indices 0-3: ±2/4/8/16 g and ±250/500/1000/2000 °/s.
type MPU9250Config struct {
	SPIDevice  string
	CSPin      string
	AccelRange byte
	GyroRange  byte
	Calibrate  bool
}

// MPU9250Reader reads gyroscope and accelerometer samples over SPI.
// The on-board magnetometer is not used; the filter runs in IMU-only mode.
type MPU9250Reader struct {
	imu        *mpu9250.MPU9250
	accelScale float64 // LSB per g
	gyroScale  float64 // LSB per °/s
}

// NewMPU9250Reader initializes the IMU.
func NewMPU9250Reader(cfg MPU9250Config) (*MPU9250Reader, error) {
	if cfg.AccelRange > 3 || cfg.GyroRange > 3 {
		return nil, fmt.Errorf("mpu9250: range index out of bounds (accel=%d gyro=%d)", cfg.AccelRange, cfg.GyroRange)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250: periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("mpu9250: CS pin %q not found", cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: SPI transport (%s): %w", cfg.SPIDevice, err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: device creation: %w", err)
	}
	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250: initialization: %w", err)
	}
	if cfg.Calibrate {
		if err := imu.Calibrate(); err != nil {
			return nil, fmt.Errorf("mpu9250: calibrate: %w", err)
		}
	}
	if err := imu.SetAccelRange(cfg.AccelRange); err != nil {
		return nil, fmt.Errorf("mpu9250: set accel range: %w", err)
	}
	if err := imu.SetGyroRange(cfg.GyroRange); err != nil {
		return nil, fmt.Errorf("mpu9250: set gyro range: %w", err)
	}
	log.Printf("mpu9250: ready on %s (accel ±%dg, gyro ±%d°/s)", cfg.SPIDevice,
		[]int{2, 4, 8, 16}[cfg.AccelRange], []int{250, 500, 1000, 2000}[cfg.GyroRange])

	accelScale, gyroScale := rangeScales(cfg.AccelRange, cfg.GyroRange)
	return &MPU9250Reader{
		imu:        imu,
		accelScale: accelScale,
		gyroScale:  gyroScale,
	}, nil
}

// rangeScales returns the sensitivity for the given range indices.
func rangeScales(accelRange, gyroRange byte) (accel, gyro float64) {
	accel = float64(int(16384) >> accelRange)
	gyro = 131.0 / float64(int(1)<<gyroRange)
	return accel, gyro
}

// ReadRaw implements RawReader.
func (r *MPU9250Reader) ReadRaw() (Raw, error) {
	var raw [6]int16
	reads := []struct {
		name string
		fn   func() (int16, error)
	}{
		{"accel X", r.imu.GetAccelerationX},
		{"accel Y", r.imu.GetAccelerationY},
		{"accel Z", r.imu.GetAccelerationZ},
		{"gyro X", r.imu.GetRotationX},
		{"gyro Y", r.imu.GetRotationY},
		{"gyro Z", r.imu.GetRotationZ},
	}
	for i, rd := range reads {
		v, err := rd.fn()
		if err != nil {
			return Raw{}, fmt.Errorf("mpu9250: %s: %w", rd.name, err)
		}
		raw[i] = v
	}

	return Raw{
		Accel: Vector{
			X: float64(raw[0]) / r.accelScale,
			Y: float64(raw[1]) / r.accelScale,
			Z: float64(raw[2]) / r.accelScale,
		},
		Gyro: Vector{
			X: float64(raw[3]) / r.gyroScale,
			Y: float64(raw[4]) / r.gyroScale,
			Z: float64(raw[5]) / r.gyroScale,
		},
	}, nil
}
